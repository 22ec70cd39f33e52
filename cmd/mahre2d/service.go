/*
mahre2d - Battery capacity monitoring daemon
Copyright (C) 2026, the mahRe2 project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package main

import (
	"encoding/json"
	"errors"

	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"

	"github.com/fdm225/mahRe2/battery"
)

const (
	dbusName = "org.mahre2.Battery"
	dbusPath = "/org/mahre2/Battery"
)

type service struct {
	monitor *battery.Monitor
}

func startService(m *battery.Monitor) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return errors.New("name already taken")
	}

	s := &service{
		monitor: m,
	}
	conn.Export(s, dbusPath, dbusName)
	conn.Export(genIntrospectable(s), dbusPath, "org.freedesktop.DBus.Introspectable")
	return nil
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    dbusName,
			Methods: introspect.Methods(v),
		}},
	}
	return introspect.NewIntrospectable(node)
}

// Status returns the latest battery status as JSON.
func (s service) Status() (string, *dbus.Error) {
	data, err := json.Marshal(s.monitor.Status())
	if err != nil {
		return "", makeDbusError(".Status", err)
	}
	return string(data), nil
}

// Reset starts a new session, as if the reset switch had been held.
func (s service) Reset() *dbus.Error {
	log.Info("Session reset requested over dbus.")
	s.monitor.Reset()
	return nil
}

// Flush writes the current session to the flight log without resetting.
func (s service) Flush() (bool, *dbus.Error) {
	return s.monitor.Flush(), nil
}

func makeDbusError(name string, err error) *dbus.Error {
	return &dbus.Error{
		Name: dbusName + name,
		Body: []interface{}{err.Error()},
	}
}
