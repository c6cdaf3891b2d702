// checksubjects validates a subjects file and probes each configured nitter
// mirror with a fetch for the first subject, so bad mirrors are caught
// before the bot ships with them.
package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v2"
)

type subject struct {
	Handle    string `yaml:"handle"`
	ChannelID string `yaml:"channel_id"`
	Paused    bool   `yaml:"paused"`
}

type subjectsFile struct {
	Subjects []subject `yaml:"subjects"`
}

func main() {
	path := flag.String("subjects", "config/subjects.yml", "path to the subjects file")
	mirrors := flag.String("mirrors", os.Getenv("NITTER_BASE_URLS"), "comma-separated nitter base URLs")
	flag.Parse()

	data, err := os.ReadFile(*path)
	if err != nil {
		fmt.Printf("error reading subjects file: %v\n", err)
		os.Exit(1)
	}

	var file subjectsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		fmt.Printf("error parsing subjects file: %v\n", err)
		os.Exit(1)
	}

	bad := 0
	var probe string
	for _, s := range file.Subjects {
		if s.Handle == "" || s.ChannelID == "" {
			fmt.Printf("invalid subject (handle=%q channel_id=%q): both are required\n", s.Handle, s.ChannelID)
			bad++
			continue
		}
		if probe == "" && !s.Paused {
			probe = strings.TrimPrefix(s.Handle, "@")
		}
	}
	fmt.Printf("%d subjects, %d invalid\n", len(file.Subjects), bad)

	if *mirrors == "" || probe == "" {
		if bad > 0 {
			os.Exit(1)
		}
		return
	}

	client := &http.Client{Timeout: 10 * time.Second}

	type result struct {
		mirror  string
		ok      bool
		message string
		elapsed time.Duration
	}

	list := strings.Split(*mirrors, ",")
	results := make(chan result, len(list))
	var wg sync.WaitGroup

	for _, mirror := range list {
		mirror = strings.TrimRight(strings.TrimSpace(mirror), "/")
		if mirror == "" {
			continue
		}
		wg.Add(1)
		go func(mirror string) {
			defer wg.Done()

			start := time.Now()
			url := fmt.Sprintf("%s/%s/rss", mirror, probe)
			resp, err := client.Get(url)
			if err != nil {
				results <- result{mirror, false, err.Error(), time.Since(start)}
				return
			}
			defer resp.Body.Close()
			io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

			if resp.StatusCode != http.StatusOK {
				results <- result{mirror, false, resp.Status, time.Since(start)}
				return
			}
			results <- result{mirror, true, "OK", time.Since(start)}
		}(mirror)
	}

	wg.Wait()
	close(results)

	for r := range results {
		status := "FAIL"
		if r.ok {
			status = "ok"
		}
		fmt.Printf("%-4s %-40s %s (%s)\n", status, r.mirror, r.message, r.elapsed.Round(time.Millisecond))
		if !r.ok {
			bad++
		}
	}

	if bad > 0 {
		os.Exit(1)
	}
}
