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
package main

import "fmt"
import "io"
import "os"
import "strconv"
import "strings"

import "github.com/chzyer/readline"
import "github.com/google/uuid"

import "github.com/launix-de/waldb/wal"

// exit codes, so a wrapper script can branch on "no snapshot" without
// parsing stderr (spec.md §6: "a CLI wrapper can translate [no-snapshot]
// to a helpful exit code").
const (
	exitOK           = 0
	exitGenericFatal = 1
	exitNoSnapshot   = 2
)

func main() {
	cfg := wal.DefaultConfig()
	if len(os.Args) > 1 {
		cfg.WalDir = os.Args[1]
	}
	if len(os.Args) > 2 {
		cfg.SnapDir = os.Args[2]
	}

	sessionID := uuid.New()
	rl, err := readline.New(fmt.Sprintf("walctl[%s]> ", sessionID.String()[:8]))
	if err != nil {
		fmt.Println("walctl: readline init failed:", err)
		os.Exit(exitGenericFatal)
	}
	defer rl.Close()

	fmt.Println("walctl — wal_dir:", cfg.WalDir, "snap_dir:", cfg.SnapDir)
	fmt.Println("commands: greatest-lsn | scan <lsn> | dump <lsn> | snapshot | quit")

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if code, ok := dispatch(cfg, line); ok {
			os.Exit(code)
		}
	}
}

func dispatch(cfg wal.Config, line string) (exitCode int, shouldExit bool) {
	fields := strings.Fields(line)
	cmd := fields[0]

	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(wal.NoSnapshotError); ok {
				fmt.Println("walctl:", r)
				exitCode, shouldExit = exitNoSnapshot, true
				return
			}
			fmt.Println("walctl: fatal:", r)
			exitCode, shouldExit = exitGenericFatal, true
		}
	}()

	switch cmd {
	case "quit", "exit":
		return exitOK, true

	case "greatest-lsn":
		walDir := wal.NewDirectory(cfg.WalDir, "xlog")
		lsn, err := walDir.GreatestLSN()
		if err != nil {
			fmt.Println("error:", err)
			return 0, false
		}
		fmt.Println(lsn)

	case "scan":
		if len(fields) < 2 {
			fmt.Println("usage: scan <lsn>")
			return 0, false
		}
		lsn, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			fmt.Println("error:", err)
			return 0, false
		}
		runScan(cfg, lsn, false)

	case "dump":
		if len(fields) < 2 {
			fmt.Println("usage: dump <lsn>")
			return 0, false
		}
		lsn, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			fmt.Println("error:", err)
			return 0, false
		}
		runScan(cfg, lsn, true)

	case "snapshot":
		runSnapshot(cfg)

	default:
		fmt.Println("unknown command:", cmd)
	}
	return 0, false
}

func runScan(cfg wal.Config, lsn int64, verbose bool) {
	walDir := wal.NewDirectory(cfg.WalDir, "xlog")
	fileLSN, err := walDir.FindIncludingFile(lsn)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	entry, ok := walDir.Entry(fileLSN)
	path := ""
	if ok {
		path = entry.Path
	}
	seg, err := wal.OpenRead(cfg.WalDir, cfg.XlogClasses(), fileLSN, path)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer seg.Close()

	count := 0
	for {
		row, err := seg.Next()
		if err == wal.ErrEOF {
			break
		}
		if err != nil {
			fmt.Println("error:", err)
			break
		}
		count++
		if verbose {
			fmt.Printf("lsn=%d tm=%.3f len=%d\n", row.LSN, row.TM, len(row.Payload))
		}
	}
	fmt.Println("rows:", count, "cleanly_closed:", seg.CleanlyClosed(), "corrupt:", seg.CorruptCount())
}

func runSnapshot(cfg wal.Config) {
	r := wal.NewRecovery(cfg, func(wal.Row) {}, func(wal.Row) error { return nil })
	if err := r.Cold(0); err != nil {
		fmt.Println("error:", err)
		return
	}
	lsn, err := r.EmitSnapshot(func() ([]byte, bool) { return nil, false })
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println("snapshot written at lsn", lsn)
}
