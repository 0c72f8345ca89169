// SPDX-License-Identifier: MIT

//go:build linux

package kapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCString(t *testing.T) {
	patterns := []struct {
		name string
		in   []byte
		out  string
	}{
		{"empty", []byte{}, ""},
		{"unterminated", []byte{'a', 'b', 'c'}, "abc"},
		{"terminated", []byte{'a', 'b', 0, 'c'}, "ab"},
		{"leading null", []byte{0, 'a', 'b'}, ""},
	}
	for _, p := range patterns {
		t.Run(p.name, func(t *testing.T) {
			assert.Equal(t, p.out, CString(p.in))
		})
	}
}

func TestSetCString(t *testing.T) {
	var a [8]byte

	setCString(a[:], "short")
	assert.Equal(t, "short", CString(a[:]))

	// truncated to leave room for the terminator
	setCString(a[:], "much too long")
	assert.Equal(t, "much to", CString(a[:]))
}

func TestSemverString(t *testing.T) {
	assert.Equal(t, "", Semver{}.String())
	assert.Equal(t, "5", Semver{5}.String())
	assert.Equal(t, "5.10.2", Semver{5, 10, 2}.String())
}

func TestSemverCompare(t *testing.T) {
	patterns := []struct {
		name string
		a, b Semver
		out  int
	}{
		{"empty", Semver{}, Semver{}, 0},
		{"equal", Semver{5, 10}, Semver{5, 10}, 0},
		{"major older", Semver{4, 20}, Semver{5, 0}, -1},
		{"major newer", Semver{6, 0}, Semver{5, 19}, 1},
		{"minor older", Semver{5, 4}, Semver{5, 10}, -1},
		{"minor newer", Semver{5, 11}, Semver{5, 10}, 1},
		{"shorter", Semver{5}, Semver{5, 10}, -1},
		{"longer", Semver{5, 10, 1}, Semver{5, 10}, 1},
	}
	for _, p := range patterns {
		t.Run(p.name, func(t *testing.T) {
			assert.Equal(t, p.out, p.a.Compare(p.b))
		})
	}
}
