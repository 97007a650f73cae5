package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skdltmxn/cv50-go/codeview"
	"github.com/skdltmxn/cv50-go/internal/cvtest"
	"github.com/skdltmxn/cv50-go/internal/symbols"
)

func recordsStream(t *testing.T) *codeview.Stream {
	t.Helper()

	mod := cvtest.NewAligned()
	var obj cvtest.Buffer
	obj.U32(0x1234).Name("main.obj")
	mod.Add(uint16(symbols.S_OBJNAME), obj.Bytes())
	mod.Add(uint16(symbols.S_GPROC32), cvtest.Proc32(0, 0, 0x30, 0x10, 1, 0x1001, "main"))
	mod.Add(uint16(symbols.S_BPREL32), cvtest.BPRel32(-8, 0x74, "i"))
	mod.Add(uint16(symbols.S_THUNK32), cvtest.Thunk32(0x40, 1, 5, "jmp_exit"))
	mod.Add(uint16(symbols.S_END), nil)
	mod.Add(uint16(symbols.S_END), nil)

	globals := cvtest.NewTable()
	var udt cvtest.Buffer
	udt.U16(0x1000).Name("Point")
	globals.Add(uint16(symbols.S_UDT), udt.Bytes())
	var c cvtest.Buffer
	c.U16(0x74).Numeric(42).Name("ANSWER")
	globals.Add(uint16(symbols.S_CONSTANT), c.Bytes())

	data := cvtest.CodeView("NB11",
		cvtest.Subsection{Kind: uint16(codeview.SstAlignSym), Module: 1, Data: mod.Bytes()},
		cvtest.Subsection{Kind: uint16(codeview.SstGlobalSym), Module: 0xffff, Data: globals.Bytes()},
	)
	cv, err := codeview.Parse(data)
	require.NoError(t, err)
	require.NotNil(t, cv)
	return cv
}

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	saved := output
	var buf bytes.Buffer
	output = &buf
	t.Cleanup(func() { output = saved })
	return &buf
}

func setRecordsFlags(t *testing.T, module, limit int) {
	t.Helper()
	savedModule, savedLimit := recordsModule, recordsLimit
	recordsModule, recordsLimit = module, limit
	t.Cleanup(func() { recordsModule, recordsLimit = savedModule, savedLimit })
}

func TestPrintRecords(t *testing.T) {
	cv := recordsStream(t)
	buf := captureOutput(t)
	setRecordsFlags(t, -1, 0)

	assert.Equal(t, 8, printRecords(cv))
	out := buf.String()
	assert.Contains(t, out, "sstAlignSym (module 0x0001)")
	assert.Contains(t, out, "main.obj signature=0x00001234")
	assert.Contains(t, out, "main 0001:00000010 len=0x30 type=0x1001")
	assert.Contains(t, out, "i [bp-8] type=0x0074")
	assert.Contains(t, out, "jmp_exit 0001:00000040 len=0x5")
	assert.Contains(t, out, "Point type=0x1000")
	assert.Contains(t, out, "ANSWER = 42 type=0x0074")
}

func TestPrintRecordsFilters(t *testing.T) {
	cv := recordsStream(t)

	buf := captureOutput(t)
	setRecordsFlags(t, 0xffff, 0)
	assert.Equal(t, 2, printRecords(cv))
	assert.NotContains(t, buf.String(), "sstAlignSym")

	captureOutput(t)
	setRecordsFlags(t, -1, 3)
	assert.Equal(t, 3, printRecords(cv))
}

func TestDescribeRecordMalformed(t *testing.T) {
	desc := describeRecord(&symbols.Record{Kind: symbols.S_GDATA32, Data: []byte{1, 2}})
	assert.Contains(t, desc, "<malformed")

	desc = describeRecord(&symbols.Record{Kind: symbols.S_SSEARCH, Data: make([]byte, 6)})
	assert.Equal(t, "6 bytes", desc)
}
