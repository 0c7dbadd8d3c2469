package tool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/showwin/speedtest-go/speedtest"

	"jarvis/internal/domain"
)

// SpeedResult is one internet speed measurement.
type SpeedResult struct {
	Server       string
	Ping         time.Duration
	DownloadMbps float64
	UploadMbps   float64
}

// SpeedTester measures the connection against a nearby test server.
type SpeedTester interface {
	Measure(ctx context.Context) (SpeedResult, error)
}

// Speedtest measures through the speedtest.net server network.
type Speedtest struct{}

func (Speedtest) Measure(ctx context.Context) (SpeedResult, error) {
	client := speedtest.New()
	servers, err := client.FetchServerListContext(ctx)
	if err != nil {
		return SpeedResult{}, fmt.Errorf("fetch servers: %w", err)
	}
	targets, err := servers.FindServer(nil)
	if err != nil {
		return SpeedResult{}, fmt.Errorf("pick server: %w", err)
	}
	if len(targets) == 0 {
		return SpeedResult{}, errors.New("no speed test server available")
	}
	s := targets[0]
	if err := s.PingTestContext(ctx, nil); err != nil {
		return SpeedResult{}, fmt.Errorf("ping: %w", err)
	}
	if err := s.DownloadTestContext(ctx); err != nil {
		return SpeedResult{}, fmt.Errorf("download: %w", err)
	}
	if err := s.UploadTestContext(ctx); err != nil {
		return SpeedResult{}, fmt.Errorf("upload: %w", err)
	}
	return SpeedResult{
		Server:       s.Sponsor + " (" + s.Name + ")",
		Ping:         s.Latency,
		DownloadMbps: s.DLSpeed.Mbps(),
		UploadMbps:   s.ULSpeed.Mbps(),
	}, nil
}

func (d Deps) internetSpeed(ctx context.Context, _ domain.Args) (domain.Payload, error) {
	res, err := d.Speed.Measure(ctx)
	if err != nil {
		return domain.Payload{}, fmt.Errorf("speed test: %w", err)
	}
	ping := float64(res.Ping) / float64(time.Millisecond)
	return domain.Payload{
		Message: fmt.Sprintf("Ping: %.2f ms, Download: %.2f Mbps, Upload: %.2f Mbps.", ping, res.DownloadMbps, res.UploadMbps),
		Data: map[string]any{
			"server":        res.Server,
			"ping_ms":       ping,
			"download_mbps": res.DownloadMbps,
			"upload_mbps":   res.UploadMbps,
		},
	}, nil
}
