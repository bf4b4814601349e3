package service

import (
	"reflect"
	"testing"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"5582999990000", "5582999990000"},
		{"+55 (82) 99999-0000", "5582999990000"},
		{"82999990000", "5582999990000"},
		{"8233330000", "558233330000"},
		{"082999990000", "5582999990000"},
		{"558299990000", "558299990000"},
		{"12345", ""},
		{"", ""},
		{"55829999900001234", ""},
	}
	for _, tc := range cases {
		if got := NormalizePhone(tc.in); got != tc.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPhoneVariants(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"5582999990000", []string{"5582999990000", "558299990000"}},
		{"558299990000", []string{"558299990000", "5582999990000"}},
		{"558233330000", []string{"558233330000"}},
		{"4915112345678", []string{"4915112345678"}},
		{"abc", nil},
	}
	for _, tc := range cases {
		if got := PhoneVariants(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("PhoneVariants(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
