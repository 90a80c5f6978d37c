// Package inspect runs a single info or list query and prints the result as tables.
package inspect

import (
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/woozymasta/teestat/internal/config"
	"github.com/woozymasta/teestat/internal/game"
	"github.com/woozymasta/teestat/internal/teeworlds"
)

// Queriers used by Run, replaced in tests.
var (
	queryServer = game.QueryServer
	queryMaster = game.QueryMaster
)

// Run performs the query selected by cfg.Inspect and writes the report to w.
func Run(w io.Writer, cfg *config.Config) error {
	if cfg.Inspect.List != "" {
		return List(w, cfg.Inspect.List, cfg.Query)
	}
	return Info(w, cfg.Inspect.Info, cfg.Query)
}

// Info queries one game server and prints its header and roster.
func Info(w io.Writer, address string, options config.Query) error {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", address, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return fmt.Errorf("invalid port %q: %w", portStr, err)
	}

	info, err := queryServer(host, int(port), options)
	if err != nil {
		return fmt.Errorf("query %s: %w", address, err)
	}

	writeInfo(w, address, info)
	return nil
}

// List queries one master server and prints the addresses it announced.
// A partial list is printed before the decode error is returned.
func List(w io.Writer, address string, options config.Query) error {
	list, err := queryMaster(address, options)
	if len(list) == 0 && err != nil {
		return fmt.Errorf("query %s: %w", address, err)
	}

	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"#", "Address"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for i, a := range list {
		tw.Append([]string{strconv.Itoa(i + 1), a.String()})
	}

	tw.Render()
	fmt.Fprintf(w, "%d servers from %s\n", len(list), address)

	if err != nil {
		return fmt.Errorf("partial list from %s: %w", address, err)
	}
	return nil
}

func writeInfo(w io.Writer, address string, info *teeworlds.ServerInfo) {
	head := tablewriter.NewWriter(w)
	head.SetBorder(true)
	head.SetAutoWrapText(false)

	head.Append([]string{"Address", address})
	head.Append([]string{"Name", info.Name})
	head.Append([]string{"Version", info.Version})
	head.Append([]string{"Map", info.Map})
	head.Append([]string{"Game type", info.GameType})
	head.Append([]string{"Password", strconv.FormatBool(info.Password)})
	head.Append([]string{"Players", fmt.Sprintf("%d/%d", info.PlayerCount, info.MaxPlayerCount)})
	head.Append([]string{"Clients", fmt.Sprintf("%d/%d", info.ClientCount, info.MaxClientCount)})
	if info.MapCRC != nil {
		head.Append([]string{"Map CRC", fmt.Sprintf("%08x", uint32(*info.MapCRC))})
	}
	if info.MapSize != nil {
		head.Append([]string{"Map size", strconv.Itoa(*info.MapSize)})
	}
	head.Render()

	if len(info.Players) == 0 {
		return
	}

	roster := tablewriter.NewWriter(w)
	roster.SetHeader([]string{"Name", "Clan", "Country", "Score", "Team"})
	roster.SetBorder(true)
	roster.SetAutoWrapText(false)

	for _, p := range info.Players {
		team := "player"
		if p.Spectator {
			team = "spectator"
		}
		roster.Append([]string{p.Name, p.Clan, strconv.Itoa(p.Country), strconv.Itoa(p.Score), team})
	}
	roster.Render()

	if !info.Complete() {
		fmt.Fprintf(w, "roster incomplete: %d of %d clients received\n", len(info.Players), info.ClientCount)
	}
}
