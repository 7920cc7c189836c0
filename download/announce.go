package download

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"gorent/bencode"
	"gorent/metainfo"
)

// PeerAddr is one candidate peer returned by a tracker announce.
type PeerAddr struct {
	IP   net.IP
	Port uint16
}

func (p PeerAddr) String() string {
	return net.JoinHostPort(p.IP.String(), strconv.Itoa(int(p.Port)))
}

// AnnounceClient talks to a torrent's announce URL to obtain a peer list,
// grounded in the teacher's RequestPeers (torrent/torrent.go), generalized
// to use this module's own bencode codec instead of struct-tag
// unmarshalling so both dictionary-mode and compact-mode peer lists
// (spec.md §4.8) can be parsed with the same decoder the tracker itself
// produces them with.
type AnnounceClient struct {
	HTTPClient *http.Client
	PeerID     [20]byte
	Port       uint16
}

// NewAnnounceClient builds a client using a 10-second-timeout HTTP client.
func NewAnnounceClient(peerID [20]byte, port uint16) *AnnounceClient {
	return &AnnounceClient{
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		PeerID:     peerID,
		Port:       port,
	}
}

// Announce requests a peer list for d from its announce URL.
func (c *AnnounceClient) Announce(d *metainfo.Descriptor, event string, uploaded, downloaded, left int64) ([]PeerAddr, error) {
	u, err := c.buildURL(d, event, uploaded, downloaded, left)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTPClient.Get(u)
	if err != nil {
		return nil, fmt.Errorf("download: announce request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("download: read announce response: %w", err)
	}

	return parseAnnounceResponse(body)
}

func (c *AnnounceClient) buildURL(d *metainfo.Descriptor, event string, uploaded, downloaded, left int64) (string, error) {
	base, err := url.Parse(d.Announce)
	if err != nil {
		return "", fmt.Errorf("download: invalid announce url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return "", fmt.Errorf("download: unsupported announce scheme %q", base.Scheme)
	}

	infoHash := d.InfoHash()
	q := url.Values{}
	q.Set("info_hash", string(infoHash[:]))
	q.Set("peer_id", string(c.PeerID[:]))
	q.Set("port", strconv.Itoa(int(c.Port)))
	q.Set("uploaded", strconv.FormatInt(uploaded, 10))
	q.Set("downloaded", strconv.FormatInt(downloaded, 10))
	q.Set("left", strconv.FormatInt(left, 10))
	q.Set("compact", "1")
	if event != "" {
		q.Set("event", event)
	}
	base.RawQuery = q.Encode()
	return base.String(), nil
}

func parseAnnounceResponse(body []byte) ([]PeerAddr, error) {
	v, err := bencode.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("download: malformed announce response: %w", err)
	}
	if reason, ok := v.Get("failure reason"); ok {
		s, _ := reason.ByteString()
		return nil, fmt.Errorf("download: tracker failure: %s", s)
	}

	peersVal, ok := v.Get("peers")
	if !ok {
		return nil, fmt.Errorf("download: announce response missing peers")
	}

	if raw, ok := peersVal.ByteString(); ok {
		return parseCompactPeers(raw)
	}
	if peersVal.IsList() {
		return parseDictPeers(peersVal.List)
	}
	return nil, fmt.Errorf("download: announce response peers field has unexpected shape")
}

func parseCompactPeers(raw []byte) ([]PeerAddr, error) {
	if len(raw)%6 != 0 {
		return nil, fmt.Errorf("download: compact peers length %d not a multiple of 6", len(raw))
	}
	out := make([]PeerAddr, 0, len(raw)/6)
	for i := 0; i < len(raw); i += 6 {
		ip := net.IPv4(raw[i], raw[i+1], raw[i+2], raw[i+3])
		port := uint16(raw[i+4])<<8 | uint16(raw[i+5])
		out = append(out, PeerAddr{IP: ip, Port: port})
	}
	return out, nil
}

func parseDictPeers(entries []bencode.Value) ([]PeerAddr, error) {
	out := make([]PeerAddr, 0, len(entries))
	for _, entry := range entries {
		ipVal, ok := entry.Get("ip")
		if !ok {
			continue
		}
		ipBytes, _ := ipVal.ByteString()
		portVal, ok := entry.Get("port")
		if !ok {
			continue
		}
		port, _ := portVal.Integer()
		out = append(out, PeerAddr{IP: net.ParseIP(string(ipBytes)), Port: uint16(port)})
	}
	return out, nil
}
