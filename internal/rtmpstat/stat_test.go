package rtmpstat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const sampleStat = `<?xml version="1.0"?>
<rtmp>
  <nginx_version>1.24.0</nginx_version>
  <nginx_rtmp_version>1.2.2</nginx_rtmp_version>
  <compiler>gcc 12.2.0</compiler>
  <built>Jan 10 2024</built>
  <pid>4242</pid>
  <uptime>3600</uptime>
  <naccepted>7</naccepted>
  <bw_in>2048</bw_in>
  <bytes_in>2097152</bytes_in>
  <bw_out>4096</bw_out>
  <bytes_out>4194304</bytes_out>
  <server>
    <application>
      <name>live</name>
      <live>
        <stream>
          <name>801</name>
          <time>120000</time>
          <bw_in>1500</bw_in>
          <bytes_in>1000000</bytes_in>
          <bw_out>3000</bw_out>
          <bytes_out>2000000</bytes_out>
          <bw_audio>128</bw_audio>
          <bw_video>1372</bw_video>
          <nclients>2</nclients>
          <meta>
            <video>
              <width>1280</width>
              <height>720</height>
              <frame_rate>25</frame_rate>
              <codec>H264</codec>
              <profile>Main</profile>
              <compat>0</compat>
              <level>3.1</level>
            </video>
            <audio>
              <codec>AAC</codec>
              <profile>LC</profile>
              <channels>2</channels>
              <sample_rate>44100</sample_rate>
            </audio>
          </meta>
          <client>
            <id>1</id>
            <address>10.0.0.1</address>
            <flashver>FMLE/3.0</flashver>
            <publishing/>
          </client>
          <client>
            <id>2</id>
            <address>10.0.0.2</address>
            <flashver>LNX 11,2,202</flashver>
            <pageurl>http://example.com/watch</pageurl>
            <swfurl>http://example.com/player.swf</swfurl>
          </client>
        </stream>
        <nclients>2</nclients>
      </live>
    </application>
  </server>
</rtmp>`

func TestParse(t *testing.T) {
	stat, err := Parse([]byte(sampleStat))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if stat.NginxVersion != "1.24.0" || stat.RTMPVersion != "1.2.2" {
		t.Errorf("versions = %q / %q", stat.NginxVersion, stat.RTMPVersion)
	}
	if stat.Accepted != 7 || stat.BytesIn != 2097152 {
		t.Errorf("counters = accepted %d bytes_in %d", stat.Accepted, stat.BytesIn)
	}

	streams := stat.Streams()
	if len(streams) != 1 {
		t.Fatalf("got %d streams, want 1", len(streams))
	}
	st := streams[0]
	if st.Name != "801" || st.NClients != 2 {
		t.Errorf("stream = %+v", st)
	}
	if st.Meta == nil || st.Meta.Video.Width != 1280 || st.Meta.Audio.SampleRate != 44100 {
		t.Errorf("meta = %+v", st.Meta)
	}
	if !st.Clients[0].IsPublisher() {
		t.Error("first client should be the publisher")
	}
	if st.Clients[1].IsPublisher() {
		t.Error("second client should not be the publisher")
	}
}

func TestParseMalformed(t *testing.T) {
	if _, err := Parse([]byte("<rtmp><broken")); err == nil {
		t.Error("expected error for malformed xml")
	}
}

func TestRender(t *testing.T) {
	stat, err := Parse([]byte(sampleStat))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	report := stat.Render()

	for _, want := range []string{
		"Nginx version: 1.24.0, RTMP version: 1.2.2",
		"Accepted: 7, bw_in: 2.00 Kbit/s, bytes_in: 2.00 MByte, bw_out: 4.00 Kbit/s, bytes_out: 4.00 MByte",
		"Streams: 1",
		"Stream 801:",
		"Video Meta: width 1280, height 720",
		"Audio Meta: codec AAC",
		"Server: addr 10.0.0.1",
		"Client: addr 10.0.0.2",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
}

func TestRenderIdleStream(t *testing.T) {
	stat := &Stat{Server: Server{Applications: []Application{{
		Name: "live",
		Live: Live{Streams: []Stream{{Name: "idle"}}},
	}}}}
	if report := stat.Render(); !strings.Contains(report, "Stream idle") {
		t.Errorf("report missing idle marker:\n%s", report)
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(sampleStat))
	}))
	defer srv.Close()

	stat, err := Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if stat.PID != 4242 {
		t.Errorf("pid = %d, want 4242", stat.PID)
	}
}

func TestFetchBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	if _, err := Fetch(context.Background(), srv.URL); err == nil {
		t.Error("expected error for non-200 response")
	}
}

func TestFetchUnreachable(t *testing.T) {
	if _, err := Fetch(context.Background(), "http://127.0.0.1:1/stat"); err == nil {
		t.Error("expected error for unreachable endpoint")
	}
}
