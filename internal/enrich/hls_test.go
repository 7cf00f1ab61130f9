package enrich

import (
	"testing"
	"time"

	"github.com/tinytelemetry/logtop/internal/model"
)

func TestStreamKey(t *testing.T) {
	tests := []struct {
		request string
		want    string
	}{
		{"GET /live/801.m3u8 HTTP/1.1", "801"},
		{"GET /live/801-261550546.ts HTTP/1.1", "801"},
		{"GET /live/news-live-42.ts HTTP/1.1", "news-live"},
		{"GET /index.html HTTP/1.1", "GET /index.html HTTP/1.1"},
		{"POST /live/801.m3u8 HTTP/1.1", "POST /live/801.m3u8 HTTP/1.1"},
	}
	for _, tt := range tests {
		t.Run(tt.request, func(t *testing.T) {
			if got := StreamKey(tt.request); got != tt.want {
				t.Errorf("StreamKey(%q) = %q, want %q", tt.request, got, tt.want)
			}
		})
	}
}

func TestJoinTimePriority(t *testing.T) {
	now := time.Date(2016, 5, 16, 10, 40, 0, 0, time.UTC)

	t.Run("time_local preferred", func(t *testing.T) {
		rec := model.Record{"time_local": "27/Apr/2016:07:04:48 +0000", "time": "30"}
		got := JoinTime(rec, now)
		want := time.Date(2016, 4, 27, 7, 4, 48, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("JoinTime = %v, want %v", got, want)
		}
	})

	t.Run("relative time offset", func(t *testing.T) {
		rec := model.Record{"time": "30"}
		got := JoinTime(rec, now)
		want := now.Add(-30 * time.Second)
		if !got.Equal(want) {
			t.Errorf("JoinTime = %v, want %v", got, want)
		}
	})

	t.Run("falls back to now", func(t *testing.T) {
		rec := model.Record{}
		if got := JoinTime(rec, now); !got.Equal(now) {
			t.Errorf("JoinTime = %v, want %v", got, now)
		}
	})

	t.Run("unparseable time_local falls through", func(t *testing.T) {
		rec := model.Record{"time_local": "not a clock", "time": "10"}
		got := JoinTime(rec, now)
		want := now.Add(-10 * time.Second)
		if !got.Equal(want) {
			t.Errorf("JoinTime = %v, want %v", got, want)
		}
	})
}
