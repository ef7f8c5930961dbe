package probe

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/keithlinneman/platform-demo/internal/xerrors"
)

// Kind selects a probe implementation.
type Kind string

const (
	KindSimulated Kind = "simulated"
	KindHTTP      Kind = "http"
	KindGRPC      Kind = "grpc"
	KindRedis     Kind = "redis"
	KindPostgres  Kind = "postgres"
	KindS3        Kind = "s3"
)

var kinds = []Kind{KindSimulated, KindHTTP, KindGRPC, KindRedis, KindPostgres, KindS3}

// ParseKind accepts the kind names case-insensitively; "" means simulated.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return KindSimulated, nil
	}
	for _, k := range kinds {
		if string(k) == s {
			return k, nil
		}
	}
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return "", xerrors.Newf("unknown probe kind %q (valid kinds are %s)", s, strings.Join(names, "|"))
}

// Spec describes one dependency probe.
type Spec struct {
	Kind Kind
	// Target is the URL, address, DSN or bucket, depending on Kind.
	// For grpc an optional "#service" suffix selects the health service.
	Target string
	// Simulate and Uptime configure KindSimulated.
	Simulate bool
	Uptime   float64
}

func nopClose() error { return nil }

// New builds the probe described by s and a func that releases it.
func New(ctx context.Context, s Spec) (Probe, func() error, error) {
	switch s.Kind {
	case KindSimulated, "":
		return NewSimulated(s.Simulate, s.Uptime), nopClose, nil
	case KindHTTP:
		p, err := NewHTTP(s.Target, nil)
		if err != nil {
			return nil, nil, err
		}
		return p, nopClose, nil
	case KindGRPC:
		target, service, _ := strings.Cut(s.Target, "#")
		p, err := NewGRPC(target, service)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	case KindRedis:
		p, err := NewRedisURL(s.Target)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	case KindPostgres:
		p, err := OpenPostgres(s.Target)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	case KindS3:
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, nil, xerrors.Wrap(err, "load aws config for s3 probe")
		}
		p, err := NewS3(s3.NewFromConfig(awsCfg), s.Target)
		if err != nil {
			return nil, nil, err
		}
		return p, nopClose, nil
	default:
		return nil, nil, xerrors.Newf("unknown probe kind %q", s.Kind)
	}
}
