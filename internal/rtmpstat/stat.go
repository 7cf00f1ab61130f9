// Package rtmpstat fetches and renders the XML statistics document exposed
// by the nginx-rtmp-module status endpoint. Failures here degrade the RTMP
// section of the report, never the whole tool.
package rtmpstat

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultStatURL is the conventional local stat endpoint.
const DefaultStatURL = "http://127.0.0.1:8080/stat"

const fetchTimeout = 5 * time.Second

// Stat is the document root of the rtmp stat XML.
type Stat struct {
	XMLName      xml.Name `xml:"rtmp"`
	NginxVersion string   `xml:"nginx_version"`
	RTMPVersion  string   `xml:"nginx_rtmp_version"`
	Compiler     string   `xml:"compiler"`
	Built        string   `xml:"built"`
	PID          int      `xml:"pid"`
	Uptime       int64    `xml:"uptime"`
	Accepted     int64    `xml:"naccepted"`
	BWIn         int64    `xml:"bw_in"`
	BWOut        int64    `xml:"bw_out"`
	BytesIn      int64    `xml:"bytes_in"`
	BytesOut     int64    `xml:"bytes_out"`
	Server       Server   `xml:"server"`
}

// Server holds the applications configured on the server.
type Server struct {
	Applications []Application `xml:"application"`
}

// Application is one rtmp application block.
type Application struct {
	Name string `xml:"name"`
	Live Live   `xml:"live"`
}

// Live lists the currently published streams of an application.
type Live struct {
	Streams  []Stream `xml:"stream"`
	NClients int      `xml:"nclients"`
}

// Stream is one live stream with its bandwidth counters and clients.
type Stream struct {
	Name     string   `xml:"name"`
	Time     int64    `xml:"time"`
	BWIn     int64    `xml:"bw_in"`
	BytesIn  int64    `xml:"bytes_in"`
	BWOut    int64    `xml:"bw_out"`
	BytesOut int64    `xml:"bytes_out"`
	BWAudio  int64    `xml:"bw_audio"`
	BWVideo  int64    `xml:"bw_video"`
	NClients int      `xml:"nclients"`
	Meta     *Meta    `xml:"meta"`
	Clients  []Client `xml:"client"`
}

// Meta carries the codec parameters of a published stream.
type Meta struct {
	Video VideoMeta `xml:"video"`
	Audio AudioMeta `xml:"audio"`
}

// VideoMeta describes the video track.
type VideoMeta struct {
	Width     int     `xml:"width"`
	Height    int     `xml:"height"`
	FrameRate int     `xml:"frame_rate"`
	Codec     string  `xml:"codec"`
	Profile   string  `xml:"profile"`
	Compat    int     `xml:"compat"`
	Level     float64 `xml:"level"`
}

// AudioMeta describes the audio track.
type AudioMeta struct {
	Codec      string `xml:"codec"`
	Profile    string `xml:"profile"`
	Channels   int    `xml:"channels"`
	SampleRate int    `xml:"sample_rate"`
}

// Client is one connected rtmp client. A nested <publishing/> element marks
// the publisher.
type Client struct {
	ID         int64     `xml:"id"`
	Address    string    `xml:"address"`
	Time       int64     `xml:"time"`
	FlashVer   string    `xml:"flashver"`
	PageURL    string    `xml:"pageurl"`
	SWFURL     string    `xml:"swfurl"`
	Dropped    int64     `xml:"dropped"`
	AVSync     int64     `xml:"avsync"`
	Timestamp  int64     `xml:"timestamp"`
	Publishing *struct{} `xml:"publishing"`
}

// IsPublisher reports whether the client is the stream's publisher.
func (c *Client) IsPublisher() bool { return c.Publishing != nil }

// Fetch retrieves and parses the stat document at url. An empty url uses
// DefaultStatURL.
func Fetch(ctx context.Context, url string) (*Stat, error) {
	if url == "" {
		url = DefaultStatURL
	}
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building stat request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching rtmp stat: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching rtmp stat: unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading rtmp stat: %w", err)
	}
	return Parse(body)
}

// Parse decodes a stat XML document.
func Parse(data []byte) (*Stat, error) {
	var stat Stat
	if err := xml.Unmarshal(data, &stat); err != nil {
		return nil, fmt.Errorf("parsing rtmp stat xml: %w", err)
	}
	return &stat, nil
}

// Streams flattens the live streams of every application.
func (s *Stat) Streams() []Stream {
	var streams []Stream
	for _, app := range s.Server.Applications {
		streams = append(streams, app.Live.Streams...)
	}
	return streams
}

// Render formats the stat document as the Summary/Detail text block
// appended to the report.
func (s *Stat) Render() string {
	var out strings.Builder
	out.WriteString("Summary:\n")
	fmt.Fprintf(&out, "\tNginx version: %s, RTMP version: %s, Compiler: %s, Built: %s, PID: %d, Uptime: %ds.\n",
		s.NginxVersion, s.RTMPVersion, s.Compiler, s.Built, s.PID, s.Uptime)
	fmt.Fprintf(&out, "\tAccepted: %d, bw_in: %.2f Kbit/s, bytes_in: %.2f MByte, bw_out: %.2f Kbit/s, bytes_out: %.2f MByte\n",
		s.Accepted, float64(s.BWIn)/1024, float64(s.BytesIn)/1024/1024,
		float64(s.BWOut)/1024, float64(s.BytesOut)/1024/1024)

	streams := s.Streams()
	out.WriteString("Detail:\n")
	fmt.Fprintf(&out, "\tStreams: %d\n", len(streams))
	for i := range streams {
		renderStream(&out, &streams[i])
	}
	return out.String()
}

func renderStream(out *strings.Builder, st *Stream) {
	fmt.Fprintf(out, "\tStream %s: time %d, bw_in %d, bytes_in %d, bw_out %d, bytes_out %d, bw_audio %d, bw_video %d, clients %d\n",
		st.Name, st.Time, st.BWIn, st.BytesIn, st.BWOut, st.BytesOut, st.BWAudio, st.BWVideo, st.NClients)

	out.WriteString("\tMeta info:\n")
	if st.Meta != nil {
		fmt.Fprintf(out, "\t\tVideo Meta: width %d, height %d, frame_rate %d, codec %s, profile %s, compat %d, level %g\n",
			st.Meta.Video.Width, st.Meta.Video.Height, st.Meta.Video.FrameRate,
			st.Meta.Video.Codec, st.Meta.Video.Profile, st.Meta.Video.Compat, st.Meta.Video.Level)
		fmt.Fprintf(out, "\t\tAudio Meta: codec %s, profile %s, channels %d, sample rate %d\n",
			st.Meta.Audio.Codec, st.Meta.Audio.Profile, st.Meta.Audio.Channels, st.Meta.Audio.SampleRate)
	} else {
		out.WriteString("\t\tStream idle\n")
	}

	out.WriteString("\tClient info:\n")
	for i := range st.Clients {
		c := &st.Clients[i]
		if c.IsPublisher() {
			fmt.Fprintf(out, "\t\tServer: addr %s, flashver %s\n", c.Address, c.FlashVer)
		} else {
			fmt.Fprintf(out, "\t\tClient: addr %s, flashver %s, page %s, swf %s\n",
				c.Address, c.FlashVer, c.PageURL, c.SWFURL)
		}
	}
}
