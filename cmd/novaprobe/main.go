// Command novaprobe replays synthetic prompts against a running NOVA server
// and reports first-fragment and whole-stream latency per turn.
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
	"strings"
	"time"
)

type options struct {
	baseURL        string
	uid            string
	model          string
	turns          int
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	texts          []string
	reset          bool
	verbose        bool
}

type chatRequest struct {
	Message string `json:"message"`
	UID     string `json:"uid"`
	Model   string `json:"model"`
}

type rejection struct {
	Status   string `json:"status"`
	Response string `json:"response"`
}

type turnStats struct {
	firstFragment time.Duration
	total         time.Duration
	bytes         int
}

var defaultPrompts = []string{
	"Reply in three words: how are you?",
	"Reply in three words: favorite topic?",
	"Reply in three words: best advice?",
	"Reply in three words: parting thought?",
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "novaprobe: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "novaprobe: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	var textsRaw string
	var interTurnMS int
	var turnTimeoutMS int

	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "NOVA base URL")
	flag.StringVar(&cfg.uid, "uid", "perf-probe", "identity used for the synthetic conversation")
	flag.StringVar(&cfg.model, "model", "fast", "model alias sent with every prompt")
	flag.IntVar(&cfg.turns, "turns", 10, "number of prompts to send")
	flag.IntVar(&interTurnMS, "inter-turn-ms", 180, "delay between prompts in milliseconds")
	flag.IntVar(&turnTimeoutMS, "turn-timeout-ms", 30000, "timeout per prompt in milliseconds")
	flag.StringVar(&textsRaw, "texts", "", "prompts separated by '|' (optional)")
	flag.BoolVar(&cfg.reset, "reset", false, "clear the identity's history before probing")
	flag.BoolVar(&cfg.verbose, "verbose", true, "print per-turn progress")
	flag.Parse()

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.turns <= 0 {
		return options{}, fmt.Errorf("turns must be > 0")
	}
	if interTurnMS < 0 {
		interTurnMS = 0
	}
	if turnTimeoutMS < 1000 {
		turnTimeoutMS = 1000
	}
	cfg.interTurnDelay = time.Duration(interTurnMS) * time.Millisecond
	cfg.turnTimeout = time.Duration(turnTimeoutMS) * time.Millisecond

	if strings.TrimSpace(textsRaw) == "" {
		cfg.texts = append([]string(nil), defaultPrompts...)
	} else {
		for _, part := range strings.Split(textsRaw, "|") {
			if t := strings.TrimSpace(part); t != "" {
				cfg.texts = append(cfg.texts, t)
			}
		}
		if len(cfg.texts) == 0 {
			return options{}, fmt.Errorf("texts produced no non-empty prompts")
		}
	}
	return cfg, nil
}

func run(cfg options) error {
	// No client-wide timeout; healthy streams may outlive any fixed budget
	// and each turn carries its own context deadline.
	client := &http.Client{}

	if cfg.reset {
		if err := resetConversation(client, cfg); err != nil {
			return fmt.Errorf("reset conversation: %w", err)
		}
	}

	if cfg.verbose {
		fmt.Printf("novaprobe: url=%s uid=%s model=%s turns=%d\n", cfg.baseURL, cfg.uid, cfg.model, cfg.turns)
	}

	all := make([]turnStats, 0, cfg.turns)
	for i := 0; i < cfg.turns; i++ {
		prompt := cfg.texts[i%len(cfg.texts)]
		st, err := probeTurn(client, cfg, prompt)
		if err != nil {
			return fmt.Errorf("turn %d: %w", i+1, err)
		}
		all = append(all, st)
		if cfg.verbose {
			fmt.Printf("novaprobe: turn %d/%d prompt=%q first_fragment=%s total=%s bytes=%d\n",
				i+1, cfg.turns, prompt,
				st.firstFragment.Round(time.Millisecond), st.total.Round(time.Millisecond), st.bytes)
		}
		if cfg.interTurnDelay > 0 && i < cfg.turns-1 {
			time.Sleep(cfg.interTurnDelay)
		}
	}

	report(all)
	return nil
}

func probeTurn(client *http.Client, cfg options, prompt string) (turnStats, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.turnTimeout)
	defer cancel()

	payload, err := json.Marshal(chatRequest{Message: prompt, UID: cfg.uid, Model: cfg.model})
	if err != nil {
		return turnStats{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+"/chat", bytes.NewReader(payload))
	if err != nil {
		return turnStats{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	res, err := client.Do(req)
	if err != nil {
		return turnStats{}, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))
		return turnStats{}, fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	if strings.HasPrefix(res.Header.Get("Content-Type"), "application/json") {
		var rej rejection
		if err := json.NewDecoder(res.Body).Decode(&rej); err != nil {
			return turnStats{}, err
		}
		return turnStats{}, fmt.Errorf("rejected (%s): %s", rej.Status, rej.Response)
	}

	var st turnStats
	buf := make([]byte, 4096)
	for {
		n, err := res.Body.Read(buf)
		if n > 0 {
			if st.bytes == 0 {
				st.firstFragment = time.Since(start)
			}
			st.bytes += n
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return turnStats{}, err
		}
	}
	st.total = time.Since(start)
	return st, nil
}

func resetConversation(client *http.Client, cfg options) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	payload, err := json.Marshal(map[string]string{"uid": cfg.uid})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+"/reset", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", res.StatusCode)
	}
	return nil
}

func report(all []turnStats) {
	if len(all) == 0 {
		return
	}
	var firstSum, totalSum time.Duration
	minFirst, maxFirst := all[0].firstFragment, all[0].firstFragment
	minTotal, maxTotal := all[0].total, all[0].total
	for _, st := range all {
		firstSum += st.firstFragment
		totalSum += st.total
		if st.firstFragment < minFirst {
			minFirst = st.firstFragment
		}
		if st.firstFragment > maxFirst {
			maxFirst = st.firstFragment
		}
		if st.total < minTotal {
			minTotal = st.total
		}
		if st.total > maxTotal {
			maxTotal = st.total
		}
	}
	n := time.Duration(len(all))
	fmt.Printf("novaprobe: first_fragment min=%s avg=%s max=%s\n",
		minFirst.Round(time.Millisecond), (firstSum / n).Round(time.Millisecond), maxFirst.Round(time.Millisecond))
	fmt.Printf("novaprobe: stream_total min=%s avg=%s max=%s\n",
		minTotal.Round(time.Millisecond), (totalSum / n).Round(time.Millisecond), maxTotal.Round(time.Millisecond))
}
