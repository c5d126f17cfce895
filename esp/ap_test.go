package esp

import (
	"errors"
	"net"
	"reflect"
	"testing"
)

func TestAPConfigValidate(t *testing.T) {
	valid := APConfig{SSID: "portal", Password: "secret123", Encryption: EncryptionWPA2PSK, Channel: 5, ConnLimit: 1}

	tests := []struct {
		name    string
		mutate  func(c *APConfig)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *APConfig) {}},
		{name: "open without password", mutate: func(c *APConfig) { c.Encryption, c.Password = EncryptionOpen, "" }},
		{name: "missing ssid", mutate: func(c *APConfig) { c.SSID = "" }, wantErr: true},
		{name: "missing password", mutate: func(c *APConfig) { c.Password = "" }, wantErr: true},
		{name: "wep", mutate: func(c *APConfig) { c.Encryption = 1 }, wantErr: true},
		{name: "unknown encryption", mutate: func(c *APConfig) { c.Encryption = 7 }, wantErr: true},
		{name: "conn limit low", mutate: func(c *APConfig) { c.ConnLimit = 0 }, wantErr: true},
		{name: "conn limit high", mutate: func(c *APConfig) { c.ConnLimit = 9 }, wantErr: true},
		{name: "conn limit max", mutate: func(c *APConfig) { c.ConnLimit = 8 }},
		{name: "channel", mutate: func(c *APConfig) { c.Channel = 15 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want %v", err, ErrInvalidConfig)
			}
		})
	}
}

func TestConfigureAP(t *testing.T) {
	ft := newFakeTransport()
	ap := New(ft, ft.clk)

	err := ap.ConfigureAP(APConfig{SSID: `my "cafe", 2`, Password: `p\w`, Encryption: EncryptionWPA2PSK, Channel: 5, ConnLimit: 2, Hidden: true})
	if err != nil {
		t.Fatalf("ConfigureAP() error = %v", err)
	}

	want := []string{
		"AT+CWMODE=3",
		`AT+CWSAP_CUR="my \"cafe\"\, 2","p\\w",5,3,2,1`,
		"AT+CIPMUX=1",
	}
	if !reflect.DeepEqual(ft.commands, want) {
		t.Errorf("commands = %q, want %q", ft.commands, want)
	}
}

func TestConfigureAPRejectsBeforeTransport(t *testing.T) {
	ft := newFakeTransport()
	err := New(ft, ft.clk).ConfigureAP(APConfig{SSID: "portal", Encryption: EncryptionOpen, Channel: 5, ConnLimit: 9})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("ConfigureAP() error = %v, want %v", err, ErrInvalidConfig)
	}
	if len(ft.commands) != 0 {
		t.Errorf("commands = %v, want none", ft.commands)
	}
}

func TestListenAndLinks(t *testing.T) {
	ft := newFakeTransport()
	ap := New(ft, ft.clk, WithUDPLink(3))

	if err := ap.StopListen(); err != nil {
		t.Fatalf("StopListen() error = %v", err)
	}
	steps := []func() error{
		func() error { return ap.StartListen(80) },
		ap.StopListen,
		func() error { return ap.Disconnect(2) },
		func() error { return ap.UDPListen(53) },
		ap.UDPClose,
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d error = %v", i, err)
		}
	}

	want := []string{
		"AT+CIPSERVER=1,80",
		"AT+CIPSERVER=0,80",
		"AT+CIPCLOSE=2",
		`AT+CIPSTART=3,"UDP","0.0.0.0",53,53,2`,
		"AT+CIPCLOSE=3",
	}
	if !reflect.DeepEqual(ft.commands, want) {
		t.Errorf("commands = %q, want %q", ft.commands, want)
	}
	if ap.UDPLink() != 3 {
		t.Errorf("UDPLink() = %d, want 3", ap.UDPLink())
	}
	if New(ft, ft.clk).UDPLink() != MaxLink {
		t.Errorf("default UDPLink() != %d", MaxLink)
	}
}

func TestIP(t *testing.T) {
	ft := newFakeTransport()
	ft.onCommand = func(cmd string) ([]byte, error) {
		return []byte("+CIFSR:APIP,\"192.168.4.1\"\r\n+CIFSR:APMAC,\"1a:fe:34:a1:b2:c3\""), nil
	}

	got, err := New(ft, ft.clk).IP()
	if err != nil {
		t.Fatalf("IP() error = %v", err)
	}
	if !got.Equal(net.IPv4(192, 168, 4, 1)) {
		t.Errorf("IP() = %v, want 192.168.4.1", got)
	}
	if ft.commands[0] != "AT+CIFSR" {
		t.Errorf("command = %s, want AT+CIFSR", ft.commands[0])
	}
}
