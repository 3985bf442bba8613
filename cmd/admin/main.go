package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"riftgate.ai/internal/dimension"
	"riftgate.ai/internal/persistence/globaldb"
	persistlog "riftgate.ai/internal/persistence/log"
	"riftgate.ai/internal/persistence/snapshot"
	"riftgate.ai/internal/realm"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "snapshot":
		err = snapshotCmd(os.Stdout, args)
	case "travel":
		err = travelCmd(os.Stdout, args)
	case "centers":
		err = centersCmd(os.Stdout, args)
	case "realms":
		err = getCmd(os.Stdout, args, "/admin/v1/realms")
	case "portals":
		err = getCmd(os.Stdout, args, "/admin/v1/portals")
	case "spawn":
		err = spawnCmd(os.Stdout, args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: admin <snapshot|travel|centers|realms|portals|spawn> [flags]")
}

// snapshotCmd summarizes a snapshot file: realms, portals and players.
func snapshotCmd(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("snapshot", flag.ContinueOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	path := fs.String("path", "", "snapshot path (default: latest in <data>/snapshots)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	p := strings.TrimSpace(*path)
	if p == "" {
		p = snapshot.Latest(filepath.Join(*dataDir, "snapshots"))
	}
	if p == "" {
		return fmt.Errorf("no snapshot found in %s", *dataDir)
	}
	snap, err := snapshot.ReadSnapshot(p)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "snapshot=%s tick=%d seed=%d next_entity=%d\n", filepath.Base(p), snap.Header.Tick, snap.Header.Seed, snap.NextEntityID)
	for _, r := range snap.Realms {
		fmt.Fprintf(w, "realm %s border=%d@(%d,%d) edited_columns=%d\n", r.ID, r.Border.Size, r.Border.CenterX, r.Border.CenterZ, len(r.Edited))
	}
	for _, pv := range snap.Portals {
		fmt.Fprintf(w, "portal %d home=%s target=%s pos=%v state=%d single_use=%v\n", pv.ID, pv.Home, pv.Target, pv.Pos, pv.State, pv.SingleUse)
	}
	fmt.Fprintf(w, "players=%d cooldowns=%d\n", len(snap.Players), len(snap.Cooldowns))
	return nil
}

// travelCmd counts route outcomes per code over one or more travel log files.
func travelCmd(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("travel", flag.ContinueOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	player := fs.String("player", "", "only entries for this player")
	if err := fs.Parse(args); err != nil {
		return err
	}
	files := fs.Args()
	if len(files) == 0 {
		matches, err := filepath.Glob(filepath.Join(*dataDir, "travel", "travel-*.jsonl.zst"))
		if err != nil {
			return err
		}
		sort.Strings(matches)
		files = matches
	}
	counts := map[string]int{}
	var total int
	for _, f := range files {
		entries, err := persistlog.ReadTravel(f)
		if err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(f), err)
		}
		for _, e := range entries {
			if *player != "" && e.Player != *player {
				continue
			}
			code := e.Code
			if e.Accepted {
				code = "ok"
			}
			counts[code]++
			total++
		}
	}
	codes := make([]string, 0, len(counts))
	for c := range counts {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	fmt.Fprintf(w, "files=%d entries=%d\n", len(files), total)
	for _, c := range codes {
		fmt.Fprintf(w, "%s %d\n", c, counts[c])
	}
	return nil
}

// centersCmd prints the durable generation centers and the realm sequence.
func centersCmd(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("centers", flag.ContinueOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path := filepath.Join(*dataDir, "global.sqlite")
	if _, err := os.Stat(path); err != nil {
		return err
	}
	store, err := globaldb.Open(path, zerolog.Nop())
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	names, err := store.Names(ctx)
	if err != nil {
		return err
	}
	found := false
	for _, n := range names {
		found = found || n == dimension.RecordName
	}
	if !found {
		fmt.Fprintln(w, "no generation centers recorded")
		return nil
	}
	reg := dimension.NewRegistry()
	if err := store.GetOrCreate(ctx, realm.Overworld, reg); err != nil {
		return err
	}
	fmt.Fprintf(w, "last_sequence=%d centers=%d\n", dimension.NewAllocator(reg).Last(), reg.Len())
	for _, c := range reg.Centers() {
		fmt.Fprintf(w, "%s chunk=(%d,%d)\n", c.Realm, c.Anchor.CX, c.Anchor.CZ)
	}
	return nil
}

func getCmd(w io.Writer, args []string, route string) error {
	fs := flag.NewFlagSet(strings.TrimPrefix(route, "/admin/v1/"), flag.ContinueOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	in := fs.String("realm", "", "realm filter (portals only)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + route
	if *in != "" {
		u += "?realm=" + *in
	}
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return do(w, req)
}

func spawnCmd(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("spawn", flag.ContinueOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	home := fs.String("home", string(realm.Overworld), "home realm")
	target := fs.String("target", "", "target realm (empty: decided on first tick)")
	x := fs.Int("x", 0, "x")
	y := fs.Int("y", 65, "y")
	z := fs.Int("z", 0, "z")
	despawn := fs.Int("despawn_ticks", 0, "ticks until the portal disappears (0 = never)")
	singleUse := fs.Bool("single_use", false, "remove after the first traversal")
	primed := fs.Bool("primed", false, "clear the area and spawn a guardian on first tick")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := realm.Parse(*home); err != nil {
		return err
	}
	body, err := json.Marshal(map[string]any{
		"home":          *home,
		"target":        *target,
		"pos":           [3]int{*x, *y, *z},
		"despawn_ticks": *despawn,
		"single_use":    *singleUse,
		"primed":        *primed,
	})
	if err != nil {
		return err
	}
	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/portals/spawn"
	req, err := http.NewRequest(http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return do(w, req)
}

func do(w io.Writer, req *http.Request) error {
	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Fprintln(w, strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
