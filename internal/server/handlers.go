package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/teestat/internal/models"
	"github.com/woozymasta/teestat/internal/vars"
)

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// parseTarget reads the ip and port query parameters.
func parseTarget(r *http.Request) (netip.AddrPort, error) {
	ipStr := r.URL.Query().Get("ip")
	portStr := r.URL.Query().Get("port")
	if ipStr == "" || portStr == "" {
		return netip.AddrPort{}, errors.New("missing ip or port")
	}

	ip, err := netip.ParseAddr(ipStr)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("invalid ip: %w", err)
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		return netip.AddrPort{}, errors.New("invalid port")
	}

	return netip.AddrPortFrom(ip.Unmap(), uint16(port)), nil
}

// handleServers returns a JSON list of all stored servers without rosters.
func (s *Server) handleServers(w http.ResponseWriter, _ *http.Request) {
	servers, err := s.storage.GetServers()
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch servers")
		http.Error(w, "Database Error", http.StatusInternalServerError)
		return
	}

	if servers == nil {
		servers = []models.Server{}
	}

	writeJSON(w, http.StatusOK, servers)
}

// handleGetServer returns one stored server with its roster.
// Query params: ?ip=1.2.3.4&port=8303
func (s *Server) handleGetServer(w http.ResponseWriter, r *http.Request) {
	target, err := parseTarget(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	server, err := s.storage.GetServer(target.Addr().String(), int(target.Port()))
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch server")
		http.Error(w, "Database Error", http.StatusInternalServerError)
		return
	}

	if server == nil {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, http.StatusOK, server)
}

// handleDeleteServer removes a stored server.
// Query params: ?ip=1.2.3.4&port=8303
func (s *Server) handleDeleteServer(w http.ResponseWriter, r *http.Request) {
	target, err := parseTarget(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ip, port := target.Addr().String(), int(target.Port())
	if err := s.storage.DeleteServer(ip, port); err != nil {
		log.Error().Err(err).Str("ip", ip).Int("port", port).Msg("Failed to delete server")
		http.Error(w, "Database Error", http.StatusInternalServerError)
		return
	}

	log.Info().Str("ip", ip).Int("port", port).Msg("Server deleted manually")

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "Server deleted"})
}

// handleServerQuery performs a live info query against one game server.
// Query params: ?ip=1.2.3.4&port=8303
func (s *Server) handleServerQuery(w http.ResponseWriter, r *http.Request) {
	target, err := parseTarget(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	info, err := s.queryServer(target.Addr().String(), int(target.Port()), s.query)
	if err != nil {
		writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, info)
}

// handleMasterQuery performs a live list query against one master server.
// Query params: ?address=master1.ddnet.org:8300
func (s *Server) handleMasterQuery(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		http.Error(w, "Missing address", http.StatusBadRequest)
		return
	}

	list, err := s.queryMaster(address, s.query)
	if err != nil && len(list) == 0 {
		writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": err.Error()})
		return
	}

	resp := struct {
		Warning string   `json:"warning,omitempty"`
		Servers []string `json:"servers"`
	}{Servers: make([]string, 0, len(list))}
	if err != nil {
		resp.Warning = err.Error()
	}
	for _, a := range list {
		resp.Servers = append(resp.Servers, a.String())
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleProbe queues an immediate info query for a server.
// Query params: ?ip=1.2.3.4&port=8303
func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	// Body is not used, keep it bounded anyway
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	_, _ = io.Copy(io.Discard, r.Body)

	target, err := parseTarget(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	status := s.enqueue(probeJob{Addr: target})
	log.Debug().Str("address", target.String()).Str("status", status).Msg("Manual probe")

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusAccepted)
	_, _ = fmt.Fprint(w, status)
}

// handleVersion returns build information.
func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, vars.Info())
}
