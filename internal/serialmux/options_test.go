package serialmux

import "testing"

func TestPortOptionsNormalizeDefaults(t *testing.T) {
	opts, err := PortOptions{}.Normalize()
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if opts.BaudRate != 115200 {
		t.Errorf("BaudRate = %d, want 115200", opts.BaudRate)
	}
	if opts.DataBits != 8 {
		t.Errorf("DataBits = %d, want 8", opts.DataBits)
	}
	if opts.StopBits != 1 {
		t.Errorf("StopBits = %d, want 1", opts.StopBits)
	}
	if opts.Parity != "N" {
		t.Errorf("Parity = %q, want N", opts.Parity)
	}
}

func TestPortOptionsNormalizeParityAliases(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want string
	}{
		{"none", "N"}, {"N", "N"}, {"even", "E"}, {"E", "E"}, {"odd", "O"}, {"o", "O"},
	} {
		opts, err := PortOptions{Parity: tc.in}.Normalize()
		if err != nil {
			t.Errorf("Normalize(%q) failed: %v", tc.in, err)
			continue
		}
		if opts.Parity != tc.want {
			t.Errorf("Normalize(%q).Parity = %q, want %q", tc.in, opts.Parity, tc.want)
		}
	}
}

func TestPortOptionsNormalizeRejectsInvalid(t *testing.T) {
	if _, err := (PortOptions{DataBits: 4}).Normalize(); err == nil {
		t.Error("expected error for data bits 4")
	}
	if _, err := (PortOptions{StopBits: 3}).Normalize(); err == nil {
		t.Error("expected error for stop bits 3")
	}
	if _, err := (PortOptions{Parity: "X"}).Normalize(); err == nil {
		t.Error("expected error for parity X")
	}
}

func TestPortOptionsEqual(t *testing.T) {
	a := PortOptions{BaudRate: 115200}
	b := PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "none"}
	if !a.Equal(b) {
		t.Error("normalized-equal options reported unequal")
	}
	c := PortOptions{BaudRate: 9600}
	if a.Equal(c) {
		t.Error("different baud rates reported equal")
	}
}

func TestPortOptionsPortMode(t *testing.T) {
	mode, err := PortOptions{BaudRate: 115200, Parity: "even"}.PortMode()
	if err != nil {
		t.Fatalf("PortMode failed: %v", err)
	}
	if mode.BaudRate != 115200 {
		t.Errorf("BaudRate = %d, want 115200", mode.BaudRate)
	}
	if mode.DataBits != 8 {
		t.Errorf("DataBits = %d, want 8", mode.DataBits)
	}
	if mode.Parity != EvenParity {
		t.Errorf("Parity = %v, want even", mode.Parity)
	}
	if mode.StopBits != OneStopBit {
		t.Errorf("StopBits = %v, want one", mode.StopBits)
	}

	mode, err = PortOptions{StopBits: 2, Parity: "O"}.PortMode()
	if err != nil {
		t.Fatalf("PortMode failed: %v", err)
	}
	if mode.StopBits != TwoStopBits {
		t.Errorf("StopBits = %v, want two", mode.StopBits)
	}
	if mode.Parity != OddParity {
		t.Errorf("Parity = %v, want odd", mode.Parity)
	}
}

func TestPortOptionsPortModeRejectsInvalid(t *testing.T) {
	if _, err := (PortOptions{DataBits: 9}).PortMode(); err == nil {
		t.Error("expected error for 9 data bits")
	}
}
