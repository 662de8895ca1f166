// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package proto

import (
	"encoding/binary"
	"sync"
)

// NumEncoders is the number of encoders of a Control board.
const NumEncoders = EncoderValuesSize / 4

// Encoders holds the counts of the encoders of a Control board.
type Encoders [NumEncoders]int32

// Inspection is the unsolicited encoder report sent by a Control board
// while inspecting.
type Inspection struct {
	Encoder1 int32
	Encoder2 int32
	Inputs   uint16 // digital input lines
	Count    uint16 // rolling report counter
}

// boardState is the latest data reported by the board.
type boardState struct {
	mu      sync.RWMutex
	status  []byte
	monitor []byte
	enc     Encoders
	encOK   bool
	insp    Inspection
	inspOK  bool
	inspFn  func(Inspection)
	acked   map[byte]uint64
	nstatus uint64
}

// RegisterStandard registers the handlers of the board responses other
// than run data: status, monitor, encoder, inspection and acknowledgment frames.
// Run data frames are device specific and registered with Handle.
func (sess *Session) RegisterStandard() {
	st := &sess.board
	st.mu.Lock()
	st.acked = make(map[byte]uint64)
	st.mu.Unlock()

	sess.Handle(CmdGetAllStatus, AllStatusSize, func(p []byte) {
		st.mu.Lock()
		st.status = append(st.status[:0], p...)
		st.nstatus++
		st.mu.Unlock()
	})
	sess.Handle(CmdGetMonitorPacket, MonitorSize, func(p []byte) {
		st.mu.Lock()
		st.monitor = append(st.monitor[:0], p...)
		st.mu.Unlock()
	})
	sess.Handle(CmdGetAllEncoderValues, EncoderValuesSize, func(p []byte) {
		st.mu.Lock()
		st.enc = DecodeEncoders(p)
		st.encOK = true
		st.mu.Unlock()
	})
	sess.Handle(CmdInspect, InspectSize, func(p []byte) {
		insp := DecodeInspection(p)
		st.mu.Lock()
		st.insp = insp
		st.inspOK = true
		fn := st.inspFn
		st.mu.Unlock()
		if fn != nil {
			fn(insp)
		}
	})
	sess.Handle(CmdAck, AckSize, func(p []byte) {
		st.mu.Lock()
		st.acked[p[0]]++
		st.mu.Unlock()
	})
}

// OnInspect installs fn to be called with every inspection report.
func (sess *Session) OnInspect(fn func(Inspection)) {
	sess.board.mu.Lock()
	sess.board.inspFn = fn
	sess.board.mu.Unlock()
}

// Status returns a copy of the latest status payload, or nil.
func (sess *Session) Status() []byte {
	sess.board.mu.RLock()
	defer sess.board.mu.RUnlock()
	if sess.board.status == nil {
		return nil
	}
	return append([]byte(nil), sess.board.status...)
}

// Monitor returns a copy of the latest monitor payload, or nil.
func (sess *Session) Monitor() []byte {
	sess.board.mu.RLock()
	defer sess.board.mu.RUnlock()
	if sess.board.monitor == nil {
		return nil
	}
	return append([]byte(nil), sess.board.monitor...)
}

// Encoders returns the latest encoder counts and whether any was received.
func (sess *Session) Encoders() (Encoders, bool) {
	sess.board.mu.RLock()
	defer sess.board.mu.RUnlock()
	return sess.board.enc, sess.board.encOK
}

// Inspection returns the latest inspection report and whether any was received.
func (sess *Session) Inspection() (Inspection, bool) {
	sess.board.mu.RLock()
	defer sess.board.mu.RUnlock()
	return sess.board.insp, sess.board.inspOK
}

// Acked returns the number of acknowledgments received for cmd.
func (sess *Session) Acked(cmd byte) uint64 {
	sess.board.mu.RLock()
	defer sess.board.mu.RUnlock()
	return sess.board.acked[cmd]
}

// RequestStatus asks for the board status.
func (sess *Session) RequestStatus() (bool, error) {
	return sess.Request(CmdGetAllStatus)
}

// RequestRunData asks for a run data frame.
func (sess *Session) RequestRunData() (bool, error) {
	return sess.Request(CmdGetRunData)
}

// RequestMonitor asks for a monitor packet.
func (sess *Session) RequestMonitor() (bool, error) {
	return sess.Request(CmdGetMonitorPacket)
}

// RequestEncoders asks for the encoder counts.
func (sess *Session) RequestEncoders() (bool, error) {
	return sess.Request(CmdGetAllEncoderValues)
}

// StartInspect asks the board to stream inspection reports.
func (sess *Session) StartInspect() error { return sess.Send(CmdStartInspect) }

// StopInspect stops the inspection reports.
func (sess *Session) StopInspect() error { return sess.Send(CmdStopInspect) }

// ZeroEncoders resets the encoder counts.
func (sess *Session) ZeroEncoders() error { return sess.Send(CmdZeroEncoders) }

// SetEncodersDeltaTrigger sets the encoder displacement triggering
// an inspection report.
func (sess *Session) SetEncodersDeltaTrigger(delta uint16) error {
	return sess.Send(CmdSetEncodersDeltaTrigger, byte(delta>>8), byte(delta))
}

// SetOnOff switches a board channel on or off.
func (sess *Session) SetOnOff(ch uint8, on bool) error {
	v := byte(0)
	if on {
		v = 1
	}
	return sess.Send(CmdSetOnOff, ch, v)
}

// SetPot sets the gain (PotGain) or offset (PotOffset) potentiometer of a channel.
func (sess *Session) SetPot(ch, pot uint8, value uint16) error {
	return sess.Send(CmdSetPot, ch, pot, byte(value>>8), byte(value))
}

// DecodeEncoders decodes a GetAllEncoderValues payload.
func DecodeEncoders(p []byte) Encoders {
	_ = p[EncoderValuesSize-1]
	var enc Encoders
	for i := range enc {
		enc[i] = int32(binary.BigEndian.Uint32(p[4*i:]))
	}
	return enc
}

// DecodeInspection decodes an Inspect payload.
func DecodeInspection(p []byte) Inspection {
	_ = p[InspectSize-1]
	return Inspection{
		Encoder1: int32(binary.BigEndian.Uint32(p[0:])),
		Encoder2: int32(binary.BigEndian.Uint32(p[4:])),
		Inputs:   binary.BigEndian.Uint16(p[8:]),
		Count:    binary.BigEndian.Uint16(p[10:]),
	}
}

// AppendEncoders appends the wire representation of enc to p.
func AppendEncoders(p []byte, enc Encoders) []byte {
	for _, v := range enc {
		p = binary.BigEndian.AppendUint32(p, uint32(v))
	}
	return p
}

// AppendInspection appends the wire representation of insp to p.
func AppendInspection(p []byte, insp Inspection) []byte {
	p = binary.BigEndian.AppendUint32(p, uint32(insp.Encoder1))
	p = binary.BigEndian.AppendUint32(p, uint32(insp.Encoder2))
	p = binary.BigEndian.AppendUint16(p, insp.Inputs)
	p = binary.BigEndian.AppendUint16(p, insp.Count)
	return p
}
