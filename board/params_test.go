// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package board

import (
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/go-lpc/mio/peak"
)

func TestFlagged(t *testing.T) {
	f := NewFlagged(3)
	if f.Dirty() {
		t.Fatalf("new value should be clean")
	}
	if f.Set(3) {
		t.Fatalf("setting the same value should not change it")
	}
	if !f.Set(4) || !f.Dirty() {
		t.Fatalf("setting a new value should mark it dirty")
	}
	if v, dirty := f.Take(); v != 4 || !dirty {
		t.Fatalf("invalid take: v=%d dirty=%v", v, dirty)
	}
	if v, dirty := f.Take(); v != 4 || dirty {
		t.Fatalf("take should clear the flag: v=%d dirty=%v", v, dirty)
	}
	f.Force(4)
	if !f.Dirty() || f.Value() != 4 {
		t.Fatalf("force should mark the value dirty")
	}
}

func TestParseParamKind(t *testing.T) {
	for _, tc := range []struct {
		s    string
		want ParamKind
		err  bool
	}{
		{"gain", Gain, false},
		{" Offset ", Offset, false},
		{"on-off", OnOff, false},
		{"onoff", OnOff, false},
		{"volume", 0, true},
	} {
		t.Run(tc.s, func(t *testing.T) {
			got, err := ParseParamKind(tc.s)
			switch {
			case tc.err && err == nil:
				t.Fatalf("expected an error")
			case !tc.err && err != nil:
				t.Fatalf("could not parse: %+v", err)
			case got != tc.want:
				t.Fatalf("got=%v, want=%v", got, tc.want)
			}
		})
	}
}

func TestChannelParamsUpdate(t *testing.T) {
	p := NewChannelParams(2)
	for _, tc := range []struct {
		kind  ParamKind
		text  string
		force bool
		want  bool
		err   bool
	}{
		{OnOff, "on", false, false, false},
		{OnOff, "off", false, true, false},
		{OnOff, "0", false, false, false},
		{OnOff, "maybe", false, false, true},
		{Gain, "10", false, true, false},
		{Gain, "10", false, false, false},
		{Gain, "10", true, true, false},
		{Offset, "65536", false, false, true},
		{Offset, "0x10", false, true, false},
		{ParamKind(42), "1", false, false, true},
	} {
		t.Run(fmt.Sprintf("%v=%s", tc.kind, tc.text), func(t *testing.T) {
			got, err := p.Update(tc.kind, tc.text, tc.force)
			switch {
			case tc.err && err == nil:
				t.Fatalf("expected an error")
			case !tc.err && err != nil:
				t.Fatalf("could not update: %+v", err)
			case got != tc.want:
				t.Fatalf("invalid changed flag: got=%v, want=%v", got, tc.want)
			}
		})
	}

	on, gain, offset := p.Values()
	if on || gain != 10 || offset != 16 {
		t.Fatalf("invalid values: on=%v gain=%d offset=%d", on, gain, offset)
	}
}

func TestChannelParamsPush(t *testing.T) {
	p := NewChannelParams(7)
	_, _ = p.Update(OnOff, "off", false)
	_, _ = p.Update(Gain, "1", false)
	_, _ = p.Update(Offset, "2", false)

	fail := fmt.Errorf("write error")
	var got []Param
	err := p.Push(func(prm Param) error {
		if prm.Kind == Gain {
			return fail
		}
		got = append(got, prm)
		return nil
	})
	if err != fail {
		t.Fatalf("expected the push error, got %v", err)
	}
	if want := []Param{{Channel: 7, Kind: OnOff, Value: 0}}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid pushed params:\ngot= %+v\nwant=%+v", got, want)
	}
	if !p.Dirty() {
		t.Fatalf("failed pushes should leave the parameters dirty")
	}

	got = nil
	err = p.Push(func(prm Param) error {
		got = append(got, prm)
		return nil
	})
	if err != nil {
		t.Fatalf("could not push: %+v", err)
	}
	want := []Param{
		{Channel: 7, Kind: Gain, Value: 1},
		{Channel: 7, Kind: Offset, Value: 2},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid pushed params:\ngot= %+v\nwant=%+v", got, want)
	}
	if p.Dirty() {
		t.Fatalf("parameters should be clean")
	}
}

func TestChannelParamsConcurrentPush(t *testing.T) {
	// every update is either pushed or still dirty: none is lost.
	p := NewChannelParams(0)

	const N = 1000
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		pushed []uint16
		push   = func(prm Param) error {
			mu.Lock()
			pushed = append(pushed, prm.Value)
			mu.Unlock()
			return nil
		}
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 1; i <= N; i++ {
			_, _ = p.Update(Gain, fmt.Sprint(i), false)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < N; i++ {
			_ = p.Push(push)
		}
	}()
	wg.Wait()
	_ = p.Push(push)

	if len(pushed) == 0 || pushed[len(pushed)-1] != N {
		t.Fatalf("last update was not pushed: %v", pushed)
	}
	for i := 1; i < len(pushed); i++ {
		if pushed[i] <= pushed[i-1] {
			t.Fatalf("pushes out of order at %d: %d <= %d", i, pushed[i], pushed[i-1])
		}
	}
}

func TestClockMap(t *testing.T) {
	for _, tc := range []struct {
		name string
		dst  []int
		grid int
		pol  peak.Policy
		src  []int
		want []int
	}{
		{
			name: "identity",
			dst:  []int{0, 1, 2},
			grid: 3,
			pol:  peak.Highest,
			src:  []int{4, 5, 6},
			want: []int{4, 5, 6},
		},
		{
			name: "many-to-one-highest",
			dst:  []int{1, 1, 0, 0},
			grid: 2,
			pol:  peak.Highest,
			src:  []int{4, 8, 2, 1},
			want: []int{2, 8},
		},
		{
			name: "many-to-one-lowest",
			dst:  []int{1, 1, 0, 0},
			grid: 2,
			pol:  peak.Lowest,
			src:  []int{4, 8, 2, 1},
			want: []int{1, 4},
		},
		{
			name: "unfed",
			dst:  []int{0, 0},
			grid: 2,
			pol:  peak.Highest,
			src:  []int{3, 5},
			want: []int{5, peak.Floor[int]()},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cm, err := NewClockMap(tc.dst, tc.grid)
			if err != nil {
				t.Fatalf("could not create clock map: %+v", err)
			}
			got := make([]int, cm.GridLen())
			cm.Remap(tc.pol, got, tc.src)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got=%v, want=%v", got, tc.want)
			}
		})
	}

	cm := IdentityClockMap(4)
	if cm.Len() != 4 || cm.GridLen() != 4 {
		t.Fatalf("invalid identity map: %d->%d", cm.Len(), cm.GridLen())
	}

	if _, err := NewClockMap([]int{0, 3}, 3); err == nil {
		t.Fatalf("expected an error")
	}

	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic")
		}
	}()
	cm.Remap(peak.Highest, make([]int, 4), make([]int, 3))
}
