package sender

import (
	"testing"
	"time"
)

func TestConfig_SendTimeoutClampedToMinimum(t *testing.T) {
	cfg := Config{SendTimeout: 5 * time.Second}
	cfg.SendTimeout = clampSendTimeout(cfg.SendTimeout)
	if cfg.SendTimeout != minSendTimeout {
		t.Fatalf("SendTimeout = %v, want %v", cfg.SendTimeout, minSendTimeout)
	}
}

func TestConfig_SendTimeoutAboveMinimumPreserved(t *testing.T) {
	cfg := Config{SendTimeout: 45 * time.Second}
	cfg.SendTimeout = clampSendTimeout(cfg.SendTimeout)
	if cfg.SendTimeout != 45*time.Second {
		t.Fatalf("SendTimeout = %v, want 45s", cfg.SendTimeout)
	}
}
