// Package audio plays the warning and announcement sounds. The core only
// ever asks for a sound by name; mapping to a file and invoking the player
// binary happens here, fire-and-forget.
package audio

import (
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

// ExecPlayer shells out to an audio player binary (aplay by default) for
// each requested sound. Playback failures are logged, never propagated; a
// broken speaker must not stall the monitor.
type ExecPlayer struct {
	dir    string
	binary string
	log    *logrus.Logger
}

func NewExecPlayer(soundDir, binary string, log *logrus.Logger) *ExecPlayer {
	if binary == "" {
		binary = "aplay"
	}
	if log == nil {
		log = logrus.New()
	}
	return &ExecPlayer{dir: soundDir, binary: binary, log: log}
}

// Play requests playback of the named sound asset and returns immediately.
func (p *ExecPlayer) Play(sound string) {
	path := filepath.Join(p.dir, sound+".wav")
	if _, err := os.Stat(path); err != nil {
		p.log.Warnf("sound asset missing: %s", path)
		return
	}
	go func() {
		if out, err := exec.Command(p.binary, path).CombinedOutput(); err != nil {
			p.log.Errorf("playback of %s failed: %v: %s", sound, err, out)
		}
	}()
}

// NullPlayer discards every request; used when no sound directory is
// configured.
type NullPlayer struct{}

func (NullPlayer) Play(string) {}

// Recorder captures requests for tests.
type Recorder struct {
	mu     sync.Mutex
	Sounds []string
}

func (r *Recorder) Play(sound string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Sounds = append(r.Sounds, sound)
}
