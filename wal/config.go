/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package wal

import "time"

import "github.com/docker/go-units"

// Config is the operator-visible configuration surface of spec.md §6,
// loaded the way storage/database.go loads schema.json: a plain struct,
// no environment-variable framework.
type Config struct {
	SnapDir string `json:"snap_dir"`
	WalDir  string `json:"wal_dir"`

	RowsPerFile int           `json:"rows_per_file"`
	FsyncDelay  time.Duration `json:"fsync_delay"`
	InboxSize   int           `json:"inbox_size"`
	ReadOnly    bool           `json:"readonly"`

	WalDirRescanDelay time.Duration `json:"wal_dir_rescan_delay"`

	// SnapIORateLimit accepts a human byte-rate string ("10MB", "512KiB")
	// parsed with docker/go-units, matching the byte-budget config fields
	// elsewhere in the teacher's storage package (shard size, column
	// budgets) that are also operator-facing size strings.
	SnapIORateLimit string `json:"snap_io_rate_limit"`

	SnapPanicIfError bool `json:"snap_panic_if_error"`
	WalPanicIfError  bool `json:"wal_panic_if_error"`
}

// DefaultConfig mirrors storage/settings.go's SettingsT defaults: sane,
// conservative values a fresh single-node instance can start with.
func DefaultConfig() Config {
	return Config{
		SnapDir:           "data/snap",
		WalDir:            "data/wal",
		RowsPerFile:       500000,
		FsyncDelay:        0,
		InboxSize:         1024,
		WalDirRescanDelay: time.Second,
		SnapIORateLimit:   "10MB",
	}
}

// ParseSnapIOLimit parses SnapIORateLimit into bytes/second. An empty
// string means unlimited (rate limiter disabled).
func (c Config) ParseSnapIOLimit() (int64, error) {
	if c.SnapIORateLimit == "" {
		return 0, nil
	}
	return units.RAMInBytes(c.SnapIORateLimit)
}

// XlogClasses returns the class-list a WAL directory accepts for reading:
// the current v11 format preferred, falling back to legacy v04.
func (c Config) XlogClasses() ClassList {
	return ClassList{XlogV11(c.RowsPerFile, c.FsyncDelay, c.WalPanicIfError), XlogV04(c.WalPanicIfError)}
}

// SnapClasses returns the class-list a snap directory accepts for
// reading: current v11, falling back to legacy v03 (spec.md §4.2 "a
// class-list lets a snap directory accept both v03 legacy and v11").
func (c Config) SnapClasses() ClassList {
	return ClassList{SnapV11(c.SnapPanicIfError), SnapV03(c.SnapPanicIfError)}
}
