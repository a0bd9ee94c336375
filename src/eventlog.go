package coinsig

/*------------------------------------------------------------------
 *
 * Purpose:	Save events to a CSV file.
 *
 * Description: Two alternatives.  Give a full file path, or a
 *		directory in which daily names will be created.  Use
 *		one or the other but not both.
 *
 *		Daily names come from a strftime pattern applied to
 *		the event time in UTC.  A header line is written when
 *		a file is new, so each file imports cleanly into a
 *		spreadsheet.
 *
 *------------------------------------------------------------------*/

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
)

const DEFAULT_DAILY_PATTERN = "%Y-%m-%d.csv"

var eventLogHeader = []string{
	"utime", "isotime", "id", "type", "channel", "direction", "disposition",
	"callerid", "connected", "location", "uniqueid", "linkedid",
	"beeps", "credited", "cents", "redirect",
}

// EventLog writes one CSV line per event.
type EventLog struct {
	mu sync.Mutex

	daily     bool
	path      string // Directory if daily, else the file.
	pattern   *strftime.Strftime
	fp        *os.File
	w         *csv.Writer
	open_name string

	logger *log.Logger
}

/*------------------------------------------------------------------
 *
 * Function:	OpenEventLog
 *
 * Inputs:	daily	- Generate daily names.  path is a directory,
 *			  created if it does not exist.
 *		path	- Log file name or directory.
 *		pattern	- strftime pattern for daily names.  Empty for
 *			  DEFAULT_DAILY_PATTERN.
 *
 * Description:	Files are opened lazily on the first write and kept
 *		open.
 *
 *------------------------------------------------------------------*/

func OpenEventLog(daily bool, path string, pattern string, logger *log.Logger) (*EventLog, error) {
	if path == "" {
		return nil, configError("open event log", fmt.Errorf("no path"))
	}

	var l = &EventLog{daily: daily, path: path, logger: loggerOr(logger)}

	if daily {
		if pattern == "" {
			pattern = DEFAULT_DAILY_PATTERN
		}
		var p, err = strftime.New(pattern)
		if err != nil {
			return nil, configError("open event log", err)
		}
		l.pattern = p

		var stat, statErr = os.Stat(path)
		switch {
		case statErr == nil && !stat.IsDir():
			return nil, configError("open event log", fmt.Errorf("%q is not a directory", path))
		case statErr != nil:
			// We don't create multiple levels like "mkdir -p".
			if err := os.Mkdir(path, 0755); err != nil {
				return nil, wrapError(KindResource, "open event log", err)
			}
			l.logger.Info("event log directory created", "dir", path)
		}
	}
	return l, nil
}

func (l *EventLog) fileFor(at time.Time) string {
	if !l.daily {
		return l.path
	}
	return filepath.Join(l.path, l.pattern.FormatString(at.UTC()))
}

// open must be called with l.mu held.
func (l *EventLog) open(name string) error {
	if l.fp != nil && name == l.open_name {
		return nil
	}
	l.closeLocked()

	// Header only if this will be the first line.
	var _, statErr = os.Stat(name)
	var already_there = statErr == nil

	var f, err = os.OpenFile(name, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return wrapError(KindResource, "open event log", err)
	}
	l.logger.Info("opening event log", "file", name)

	l.fp = f
	l.w = csv.NewWriter(f)
	l.open_name = name

	if !already_there {
		if err := l.w.Write(eventLogHeader); err != nil {
			return err
		}
	}
	return nil
}

// Write appends ev to the current file.
func (l *EventLog) Write(ev Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var at = ev.At
	if at.IsZero() {
		at = time.Now()
	}

	if err := l.open(l.fileFor(at)); err != nil {
		return err
	}

	var callerid, connected, location, uniqueid, linkedid string
	if ev.Identity != nil {
		callerid = formatParty(ev.Identity.CallerIDNum, ev.Identity.CallerIDName)
		connected = formatParty(ev.Identity.ConnectedLineNum, ev.Identity.ConnectedLineName)
		if !ev.Identity.Location.IsZero() {
			location = ev.Identity.Location.String()
		}
		uniqueid = ev.Identity.UniqueID
		linkedid = ev.Identity.LinkedID
	}

	var record = []string{
		strconv.FormatInt(at.Unix(), 10),
		at.UTC().Format("2006-01-02T15:04:05Z"),
		ev.ID,
		string(ev.Type),
		ev.Channel,
		ev.Direction,
		ev.Disposition,
		callerid,
		connected,
		location,
		uniqueid,
		linkedid,
		intOrEmpty(ev.RawHits),
		intOrEmpty(ev.Effective),
		intOrEmpty(ev.Cents),
		ev.Redirect,
	}

	if err := l.w.Write(record); err != nil {
		return wrapError(KindResource, "write event log", err)
	}
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		return wrapError(KindResource, "write event log", err)
	}
	return nil
}

// Publish lets the log stand in as an EventSink.  Failures are logged.
func (l *EventLog) Publish(ev Event) {
	if err := l.Write(ev); err != nil {
		l.logger.Error("could not log event", "id", ev.ID, "err", err)
	}
}

func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked()
}

func (l *EventLog) closeLocked() error {
	if l.fp == nil {
		return nil
	}
	l.w.Flush()
	var err = l.fp.Close()
	l.fp = nil
	l.w = nil
	l.open_name = ""
	return err
}

func formatParty(num, name string) string {
	switch {
	case name == "":
		return num
	case num == "":
		return name
	}
	return fmt.Sprintf("%s <%s>", name, num)
}

func intOrEmpty(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}
