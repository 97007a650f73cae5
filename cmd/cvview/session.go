package main

import (
	"fmt"

	"github.com/skdltmxn/cv50-go/cdebug"
	"github.com/skdltmxn/cv50-go/coff"
	"github.com/skdltmxn/cv50-go/debugger"
)

// session is one image loaded into an offline debugger.
type session struct {
	path   string
	file   *coff.File
	dbg    *debugger.Debugger
	module *debugger.Module
}

func openSession(path string) (*session, error) {
	f, err := coff.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}

	open := func(string) (debugger.Image, error) { return f, nil }
	dbg, err := debugger.New(logger, cfg, nil, nil, open)
	if err != nil {
		f.Close()
		return nil, err
	}

	base := loadBase
	if base == 0 {
		base = f.ImageBase()
	}
	m, err := dbg.LoadModule(path, base)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &session{path: path, file: f, dbg: dbg, module: m}, nil
}

func (s *session) Close() {
	s.dbg.UnloadModule(s.path)
}

// database returns the image's debug info or explains why there is none.
func (s *session) database() (*cdebug.Database, error) {
	db, err := s.dbg.Database(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read debug info: %w", err)
	}
	if db == nil {
		return nil, fmt.Errorf("%s has no embedded CodeView debug info", s.path)
	}
	return db, nil
}

// withDatabase runs fn against the debug info of the image at path.
func withDatabase(path string, fn func(s *session, db *cdebug.Database) error) error {
	s, err := openSession(path)
	if err != nil {
		return err
	}
	defer s.Close()

	db, err := s.database()
	if err != nil {
		return err
	}
	return fn(s, db)
}
