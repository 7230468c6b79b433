package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/papergrade/core/internal/config"
	jwtpkg "github.com/papergrade/core/internal/pkg/jwt"
	"go.uber.org/zap"
)

func applyRuntimeSettings(cfg *config.AppConfig, logger *zap.Logger) error {
	if secret := strings.TrimSpace(cfg.JWTSecret); secret != "" {
		jwtpkg.SetSecret(secret)
	} else {
		logger.Warn("jwt_secret is empty, using built-in default secret")
	}
	if len(cfg.AdminIDs) == 0 {
		logger.Warn("admin_ids is empty, cache admin routes are unreachable")
	}

	tz := strings.TrimSpace(cfg.Timezone)
	if tz == "" {
		return nil
	}
	loc, err := parseTimezoneLocation(tz)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	time.Local = loc
	_ = os.Setenv("TZ", tz)
	return nil
}

// maxZoneOffset bounds fixed offsets to the range real time zones use.
const maxZoneOffset = 14 * time.Hour

// parseTimezoneLocation accepts an IANA name or a fixed "+05:30" style offset.
func parseTimezoneLocation(raw string) (*time.Location, error) {
	tz := strings.TrimSpace(raw)
	if tz == "" {
		return time.Local, nil
	}
	if loc, err := time.LoadLocation(tz); err == nil {
		return loc, nil
	}
	if t, err := time.Parse("-07:00", tz); err == nil {
		_, offset := t.Zone()
		if d := time.Duration(offset) * time.Second; d <= maxZoneOffset && d >= -maxZoneOffset {
			return time.FixedZone(tz, offset), nil
		}
	}
	return nil, fmt.Errorf("expect IANA zone (e.g. Asia/Kolkata) or UTC offset (e.g. +05:30)")
}

var uptimeUnits = []struct {
	size   time.Duration
	suffix string
}{
	{24 * time.Hour, "d"},
	{time.Hour, "h"},
	{time.Minute, "m"},
	{time.Second, "s"},
}

// humanizeDuration keeps the two largest units of d, e.g. "2d 3h" or "42s".
func humanizeDuration(d time.Duration) string {
	parts := make([]string, 0, 2)
	for _, u := range uptimeUnits {
		n := d / u.size
		if n == 0 {
			if len(parts) > 0 {
				break
			}
			continue
		}
		parts = append(parts, fmt.Sprintf("%d%s", n, u.suffix))
		if len(parts) == 2 {
			break
		}
		d -= n * u.size
	}
	if len(parts) == 0 {
		return "0s"
	}
	return strings.Join(parts, " ")
}
