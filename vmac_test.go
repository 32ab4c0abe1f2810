package main

import (
	"errors"
	"testing"
)

func TestResolveVirtualMAC(t *testing.T) {
	tests := []struct {
		name    string
		macs    []VirtualMacRecord
		want    string
		wantErr bool
	}{
		{
			name: "single varp",
			macs: []VirtualMacRecord{{MacType: "varp", MacAddress: "00:1c:73:aa:bb:cc"}},
			want: "00:1c:73:aa:bb:cc",
		},
		{
			name: "other types ignored",
			macs: []VirtualMacRecord{
				{MacType: "vrrp", MacAddress: "00:00:5e:00:01:01"},
				{MacType: "varp", MacAddress: "00:1c:73:aa:bb:cc"},
				{MacType: "mlag", MacAddress: "00:1c:73:00:00:01"},
			},
			want: "00:1c:73:aa:bb:cc",
		},
		{
			name: "last varp wins",
			macs: []VirtualMacRecord{
				{MacType: "varp", MacAddress: "00:1c:73:00:00:01"},
				{MacType: "varp", MacAddress: "00:1c:73:00:00:02"},
			},
			want: "00:1c:73:00:00:02",
		},
		{
			name: "upper case normalised",
			macs: []VirtualMacRecord{{MacType: "varp", MacAddress: "00:1C:73:AA:BB:CC"}},
			want: "00:1c:73:aa:bb:cc",
		},
		{
			name:    "all zero",
			macs:    []VirtualMacRecord{{MacType: "varp", MacAddress: "00:00:00:00:00:00"}},
			wantErr: true,
		},
		{
			name:    "empty address",
			macs:    []VirtualMacRecord{{MacType: "varp", MacAddress: ""}},
			wantErr: true,
		},
		{
			name: "last varp empty",
			macs: []VirtualMacRecord{
				{MacType: "varp", MacAddress: "00:1c:73:00:00:01"},
				{MacType: "varp", MacAddress: ""},
			},
			wantErr: true,
		},
		{
			name:    "no varp",
			macs:    []VirtualMacRecord{{MacType: "vrrp", MacAddress: "00:00:5e:00:01:01"}},
			wantErr: true,
		},
		{
			name:    "garbage",
			macs:    []VirtualMacRecord{{MacType: "varp", MacAddress: "not-a-mac"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveVirtualMAC(&VirtualRouterState{VirtualMacs: tt.macs})
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResolveVirtualMAC() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrNoVirtualMAC) {
					t.Errorf("error %v should wrap ErrNoVirtualMAC", err)
				}
				return
			}
			if got.String() != tt.want {
				t.Errorf("ResolveVirtualMAC() = %s, want %s", got, tt.want)
			}
		})
	}
}
