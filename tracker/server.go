package tracker

import (
	"net"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"gorent/bencode"
)

const announceInterval = 900 // fixed, spec.md §4.8

// staticPages is the fixed table of non-announce paths the tracker
// serves, grounded in original_source/tracker/src/lib.rs's build_endpoints.
// It holds a home page and a stats page only; no JavaScript files are
// served. Unknown paths fall through to gin's NoRoute handler, which
// serves notFoundPage.
var staticPages = map[string]string{
	"/":      "<html><body><h1>gorent tracker</h1></body></html>",
	"/stats": "<html><body><h1>tracker stats</h1></body></html>",
}

const notFoundPage = "<html><body><h1>404 not found</h1></body></html>"

// Server is the announce-tracker HTTP service.
type Server struct {
	registry       *Registry
	log            *logrus.Entry
	engine         *gin.Engine
	defaultNumWant int
}

// NewServer builds a tracker Server backed by an empty Registry. numWant
// is the peer-list size used when an announce omits numwant.
func NewServer(log *logrus.Entry, numWant int) *Server {
	s := &Server{registry: NewRegistry(), log: log, defaultNumWant: numWant}
	s.engine = s.buildEngine()
	return s
}

// Registry exposes the server's swarm registry, e.g. for tests.
func (s *Server) Registry() *Registry { return s.registry }

// Handler returns the http.Handler to pass to an http.Server.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) buildEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/announce", s.handleAnnounce)
	for path, body := range staticPages {
		body := body
		r.GET(path, func(c *gin.Context) {
			c.Data(http.StatusOK, "text/html", []byte(body))
		})
	}
	r.NoRoute(func(c *gin.Context) {
		c.Data(http.StatusNotFound, "text/html", []byte(notFoundPage))
	})
	return r
}

// handleAnnounce implements GET /announce (spec.md §4.8). info_hash and
// peer_id arrive percent-encoded byte-by-byte; gin/net-url's query
// decoding already produces the raw 20-byte values as Go strings, so no
// extra decoding step is needed here.
func (s *Server) handleAnnounce(c *gin.Context) {
	infoHashStr := c.Query("info_hash")
	peerIDStr := c.Query("peer_id")
	if len(infoHashStr) != 20 {
		c.String(http.StatusBadRequest, "invalid info_hash")
		return
	}
	if len(peerIDStr) != 20 {
		c.String(http.StatusBadRequest, "invalid peer_id")
		return
	}
	var infoHash, peerID [20]byte
	copy(infoHash[:], infoHashStr)
	copy(peerID[:], peerIDStr)

	ip := net.ParseIP(c.Query("ip"))
	if ip == nil {
		ip = net.ParseIP(c.ClientIP())
	}

	port, err := strconv.ParseUint(c.Query("port"), 10, 16)
	if err != nil {
		c.String(http.StatusBadRequest, "invalid port")
		return
	}

	event, err := ParseEvent(c.Query("event"))
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	numwant := s.defaultNumWant
	if raw := c.Query("numwant"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			numwant = v
		}
	}

	swarm := s.registry.Update(infoHash, Update{
		PeerID:     peerID,
		IP:         ip,
		Port:       uint16(port),
		Uploaded:   parseUintOr(c.Query("uploaded"), 0),
		Downloaded: parseUintOr(c.Query("downloaded"), 0),
		Left:       parseUintOr(c.Query("left"), 0),
		Event:      event,
	})

	peers := swarm.Sample(peerID, ip, uint16(port), numwant)
	compact := c.Query("compact") == "1"
	body := buildResponse(peers, compact)

	c.Data(http.StatusOK, "text/plain", body)
}

func parseUintOr(s string, def uint64) uint64 {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return def
	}
	return v
}

func buildResponse(peers []PeerRecord, compact bool) []byte {
	var peersVal bencode.Value
	if compact {
		peersVal = bencode.NewByteString(compactPeers(peers))
	} else {
		peersVal = bencode.NewList(dictPeers(peers))
	}

	dict := bencode.NewDict([]bencode.DictEntry{
		{Key: []byte("interval"), Value: bencode.NewInteger(announceInterval)},
		{Key: []byte("peers"), Value: peersVal},
	})
	return bencode.Encode(dict)
}

func compactPeers(peers []PeerRecord) []byte {
	buf := make([]byte, 0, 6*len(peers))
	for _, p := range peers {
		ip4 := p.IP.To4()
		if ip4 == nil {
			continue
		}
		buf = append(buf, ip4...)
		buf = append(buf, byte(p.Port>>8), byte(p.Port))
	}
	return buf
}

func dictPeers(peers []PeerRecord) []bencode.Value {
	out := make([]bencode.Value, 0, len(peers))
	for _, p := range peers {
		out = append(out, bencode.NewDict([]bencode.DictEntry{
			{Key: []byte("peer id"), Value: bencode.NewByteString(p.PeerID[:])},
			{Key: []byte("ip"), Value: bencode.NewByteString([]byte(p.IP.String()))},
			{Key: []byte("port"), Value: bencode.NewInteger(int64(p.Port))},
		}))
	}
	return out
}
