package security

import (
	"errors"
	"net"
	"testing"
)

func noLookup(string) ([]net.IP, error) {
	return nil, errors.New("no DNS in tests")
}

func TestURLValidator_Validate(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		strict  bool
		wantErr error
	}{
		{
			name:   "googleusercontent subdomain in strict mode",
			url:    "https://lh3.googleusercontent.com/img/abc.png",
			strict: true,
		},
		{
			name:   "openrouter host in strict mode",
			url:    "https://openrouter.ai/images/abc.png",
			strict: true,
		},
		{
			name:   "extra trusted host in strict mode",
			url:    "https://cdn.example.org/abc.png",
			strict: true,
		},
		{
			name: "other HTTPS host in non-strict mode",
			url:  "https://203.0.114.7/image.png",
		},
		{
			name:    "untrusted host in strict mode",
			url:     "https://example.com/image.png",
			strict:  true,
			wantErr: ErrUntrustedHost,
		},
		{
			name:    "lookalike suffix in strict mode",
			url:     "https://evilopenrouter.ai/image.png",
			strict:  true,
			wantErr: ErrUntrustedHost,
		},
		{
			name:    "HTTP URL rejected",
			url:     "http://openrouter.ai/image.png",
			wantErr: ErrInvalidScheme,
		},
		{
			name:    "data URL rejected",
			url:     "data:image/png;base64,AAAA",
			wantErr: ErrInvalidScheme,
		},
		{
			name:    "localhost rejected",
			url:     "https://localhost/image.png",
			wantErr: ErrPrivateIP,
		},
		{
			name:    "127.0.0.1 rejected",
			url:     "https://127.0.0.1/image.png",
			wantErr: ErrPrivateIP,
		},
		{
			name:    "private IP 10.x rejected",
			url:     "https://10.0.0.1/image.png",
			wantErr: ErrPrivateIP,
		},
		{
			name:    "metadata endpoint rejected",
			url:     "https://169.254.169.254/latest/meta-data",
			wantErr: ErrPrivateIP,
		},
		{
			name:    "IPv6 loopback rejected",
			url:     "https://[::1]/image.png",
			wantErr: ErrPrivateIP,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewURLValidator(tt.strict, "CDN.example.org ")
			v.lookupIP = noLookup

			err := v.Validate(tt.url)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, wantErr nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestURLValidator_ResolvedPrivateAddress(t *testing.T) {
	v := NewURLValidator(false)
	v.lookupIP = func(string) ([]net.IP, error) {
		return []net.IP{net.ParseIP("93.184.216.34"), net.ParseIP("10.1.2.3")}, nil
	}

	if err := v.Validate("https://images.example.com/a.png"); !errors.Is(err, ErrPrivateIP) {
		t.Errorf("Validate() error = %v, want ErrPrivateIP", err)
	}
}

func TestNewURLValidator_Hosts(t *testing.T) {
	v := NewURLValidator(true, "openrouter.ai", "", "img.example.net")

	if len(v.TrustedHosts) != len(DefaultTrustedHosts)+1 {
		t.Errorf("TrustedHosts = %v, want defaults plus img.example.net", v.TrustedHosts)
	}
	if len(DefaultTrustedHosts) != 4 {
		t.Errorf("DefaultTrustedHosts modified: %v", DefaultTrustedHosts)
	}
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip      string
		private bool
	}{
		{"127.0.0.1", true},
		{"10.0.0.1", true},
		{"172.16.0.1", true},
		{"192.168.0.1", true},
		{"169.254.169.254", true},
		{"0.0.0.0", true},
		{"100.64.0.1", true},
		{"192.0.2.1", true},
		{"198.51.100.1", true},
		{"203.0.113.1", true},
		{"224.0.0.1", true},
		{"240.0.0.1", true},
		{"8.8.8.8", false},
		{"142.250.72.1", false},
		{"203.0.114.7", false},
		{"::1", true},
		{"fe80::1", true},
		{"ff02::1", true},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			ip := net.ParseIP(tt.ip)
			if ip == nil {
				t.Fatalf("failed to parse IP: %s", tt.ip)
			}
			if got := isPrivateIP(ip); got != tt.private {
				t.Errorf("isPrivateIP(%s) = %v, want %v", tt.ip, got, tt.private)
			}
		})
	}
}
