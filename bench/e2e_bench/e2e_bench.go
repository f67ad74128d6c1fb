package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// UserResp represents the server's response when a token is issued.
type UserResp struct {
	UserID int64  `json:"user_id"`
	Token  string `json:"token"`
}

// PostResp is returned by POST /posts.
type PostResp struct {
	PostID   int64  `json:"post_id"`
	Sequence uint64 `json:"sequence"`
}

// FeedResp is returned by GET /feed.
type FeedResp struct {
	UserID  int64   `json:"user_id"`
	PostIDs []int64 `json:"post_ids"`
}

func main() {
	// CLI flags
	var serverAddr, certFile, keyFile string
	var U, F, P, concurrency int
	var pollTimeout int

	flag.StringVar(&serverAddr, "server", "http://localhost:8080", "server base URL")
	flag.StringVar(&certFile, "cert", "", "client certificate for TLS (optional)")
	flag.StringVar(&keyFile, "key", "", "client key for TLS (optional)")
	flag.IntVar(&U, "users", 50, "number of users")
	flag.IntVar(&F, "follows", 10, "average follows per user")
	flag.IntVar(&P, "posts", 100, "number of posts to publish")
	flag.IntVar(&concurrency, "c", 20, "concurrency for posting")
	flag.IntVar(&pollTimeout, "timeout", 10, "seconds to wait for a post to show up in a feed")
	flag.Parse()

	ctx := context.Background()

	// --- Optional TLS setup ---
	transport := &http.Transport{}
	if certFile != "" && keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			panic(fmt.Sprintf("failed to load cert/key: %v", err))
		}
		transport.TLSClientConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	}
	client := &http.Client{Transport: transport, Timeout: 10 * time.Second}

	// --- 1) Issue tokens for users ---
	base := time.Now().UnixNano() % 1_000_000 * 1000
	fmt.Printf("Issuing %d user tokens...\n", U)
	users := make([]UserResp, 0, U)
	for i := 0; i < U; i++ {
		b, _ := json.Marshal(map[string]int64{"user_id": base + int64(i)})
		resp, err := client.Post(serverAddr+"/users", "application/json", bytes.NewReader(b))
		if err != nil {
			fmt.Printf("create user error: %v\n", err)
			os.Exit(1)
		}
		var ur UserResp
		if err := json.NewDecoder(resp.Body).Decode(&ur); err != nil {
			resp.Body.Close()
			fmt.Printf("decode user resp error: %v\n", err)
			os.Exit(1)
		}
		resp.Body.Close()
		users = append(users, ur)
	}
	userTokens := make(map[int64]string, len(users))
	for _, u := range users {
		userTokens[u.UserID] = u.Token
	}

	// --- 2) Create follow relationships between users ---
	fmt.Printf("Creating follows (~%d per user)...\n", F)
	followers := make(map[int64][]int64)
	for _, u := range users {
		for j := 0; j < F; j++ {
			followee := users[rand.Intn(len(users))]
			if followee.UserID == u.UserID {
				continue
			}
			b, _ := json.Marshal(map[string]int64{"followee_id": followee.UserID})
			req, _ := http.NewRequestWithContext(ctx, http.MethodPost, serverAddr+"/follow", bytes.NewReader(b))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+u.Token)

			resp, err := client.Do(req)
			if err != nil {
				fmt.Printf("follow error: %v\n", err)
				os.Exit(1)
			}
			resp.Body.Close()
			followers[followee.UserID] = append(followers[followee.UserID], u.UserID)
		}
	}
	fmt.Println("Follow relationships established.")

	// --- 3) Publish posts concurrently ---
	fmt.Printf("Publishing %d posts with concurrency %d...\n", P, concurrency)
	type postRecord struct {
		PostID   int64
		AuthorID int64
		Created  time.Time
	}

	var wg sync.WaitGroup
	var nextPost int64 = base
	sem := make(chan struct{}, concurrency) // concurrency limiter
	postsCh := make(chan postRecord, P)

	for i := 0; i < P; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			author := users[rand.Intn(len(users))]
			id := atomic.AddInt64(&nextPost, 1)
			b, _ := json.Marshal(map[string]int64{"post_id": id})

			req, _ := http.NewRequestWithContext(ctx, http.MethodPost, serverAddr+"/posts", bytes.NewReader(b))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+author.Token)

			created := time.Now()
			resp, err := client.Do(req)
			if err != nil {
				fmt.Printf("post error: %v\n", err)
				return
			}
			var p PostResp
			if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
				resp.Body.Close()
				fmt.Printf("decode post error: %v\n", err)
				return
			}
			resp.Body.Close()
			postsCh <- postRecord{PostID: p.PostID, AuthorID: author.UserID, Created: created}
		}()
	}

	wg.Wait()
	close(postsCh)

	// --- 4) Verify posts show up in followers' feeds ---
	// Feeds hold the ten most recent posts, so a busy followee set can push a
	// post out before it is observed; those count as misses.
	fmt.Println("Checking feed visibility...")
	var latencies []float64
	var latMu sync.Mutex
	var missCount int64
	var checksWg sync.WaitGroup

	for pr := range postsCh {
		for _, fid := range followers[pr.AuthorID] {
			checksWg.Add(1)
			go func(pr postRecord, fid int64) {
				defer checksWg.Done()
				deadline := time.Now().Add(time.Duration(pollTimeout) * time.Second)
				token := userTokens[fid]

				// Poll the feed until post appears or timeout
				for time.Now().Before(deadline) {
					req, _ := http.NewRequestWithContext(ctx, http.MethodGet, serverAddr+"/feed", nil)
					req.Header.Set("Authorization", "Bearer "+token)
					resp, err := client.Do(req)
					if err != nil {
						time.Sleep(200 * time.Millisecond)
						continue
					}

					var feed FeedResp
					err = json.NewDecoder(resp.Body).Decode(&feed)
					resp.Body.Close()
					if err != nil {
						time.Sleep(200 * time.Millisecond)
						continue
					}

					for _, id := range feed.PostIDs {
						if id == pr.PostID {
							lat := time.Since(pr.Created).Seconds() * 1000
							latMu.Lock()
							latencies = append(latencies, lat)
							latMu.Unlock()
							return
						}
					}
					time.Sleep(200 * time.Millisecond)
				}

				atomic.AddInt64(&missCount, 1)
			}(pr, fid)
		}
	}

	checksWg.Wait()

	// --- 5) Compute latency statistics and export to CSV ---
	if len(latencies) == 0 {
		fmt.Println("No posts observed in feeds.")
		return
	}
	trimPercent := 1.0
	meanVal := trimmedMean(latencies, trimPercent)
	p50 := trimmedPercentile(latencies, 50, trimPercent)
	p90 := trimmedPercentile(latencies, 90, trimPercent)
	p99 := trimmedPercentile(latencies, 99, trimPercent)
	fmt.Printf("Visibility stats (ms): count=%d mean=%.2f p50=%.2f p90=%.2f p99=%.2f misses=%d\n",
		len(latencies), meanVal, p50, p90, p99, missCount)

	f, err := os.Create("e2e_latencies.csv")
	if err != nil {
		fmt.Printf("Failed to create CSV file: %v\n", err)
		return
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()
	w.Write([]string{"latency_ms"})
	for _, v := range latencies {
		w.Write([]string{fmt.Sprintf("%.3f", v)})
	}
	fmt.Println("Saved e2e_latencies.csv")
}

// trimmedMean calculates the mean of a dataset excluding extreme values.
func trimmedMean(data []float64, trimPercent float64) float64 {
	data = trim(data, trimPercent)
	if len(data) == 0 {
		return 0
	}
	var sum float64
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

// trimmedPercentile returns a percentile value after trimming extremes.
func trimmedPercentile(data []float64, p float64, trimPercent float64) float64 {
	return percentile(trim(data, trimPercent), p)
}

// trim sorts data and drops trimPercent from each end.
func trim(data []float64, trimPercent float64) []float64 {
	if len(data) == 0 {
		return data
	}
	sort.Float64s(data)
	n := int(float64(len(data)) * trimPercent / 100.0)
	if n*2 >= len(data) {
		n = len(data) / 2
	}
	return data[n : len(data)-n]
}

// percentile calculates the requested percentile using linear interpolation.
func percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}
	k := (p / 100.0) * float64(len(data)-1)
	f := int(k)
	c := f + 1
	if c >= len(data) {
		return data[len(data)-1]
	}
	return data[f]*(float64(c)-k) + data[c]*(k-float64(f))
}
