// triptest drives a running hostguard gateway through a circuit trip and
// verifies failover behavior against the /circuits endpoint.
//
// Usage:
//
//	go run triptest.go -gateway http://localhost:8080 -upstream-port 9101
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
)

func main() {
	var (
		gatewayURL   = flag.String("gateway", "http://localhost:8080", "Gateway URL")
		upstreamPort = flag.Int("upstream-port", 9101, "Upstream port to kill for testing")
		requests     = flag.Int("requests", 15, "Requests per phase")
		skipKill     = flag.Bool("skip-kill", false, "Skip the kill upstream phase")
	)
	flag.Parse()

	client := &http.Client{Timeout: 5 * time.Second}

	fmt.Println(colorCyan + "╔════════════════════════════════════════════════════════════════╗" + colorReset)
	fmt.Println(colorCyan + "║              CIRCUIT BREAKER TRIP TEST                         ║" + colorReset)
	fmt.Println(colorCyan + "╚════════════════════════════════════════════════════════════════╝" + colorReset)
	fmt.Println()

	// PHASE 1: Verify normal operation
	fmt.Println(colorBlue + "━━━ PHASE 1: Normal Operation ━━━" + colorReset)
	fmt.Println("Sending requests to verify the first upstream serves traffic...")

	upstreamHits := make(map[string]int)
	for i := 0; i < *requests; i++ {
		resp, upstream, err := sendRequest(client, *gatewayURL)
		if err != nil {
			fmt.Printf(colorRed+"  Request %d: ERROR - %v\n"+colorReset, i+1, err)
			continue
		}
		if resp.StatusCode < 500 {
			upstreamHits[upstream]++
		} else {
			fmt.Printf(colorRed+"  Request %d: Upstream=%s Status=%d\n"+colorReset, i+1, upstream, resp.StatusCode)
		}
		resp.Body.Close()
	}

	fmt.Println("\n  Upstream distribution:")
	for upstream, count := range upstreamHits {
		fmt.Printf("    %s → %d requests\n", upstream, count)
	}
	if len(upstreamHits) == 0 {
		fmt.Println(colorRed + "  ✗ No upstreams responded! Is the gateway running?" + colorReset)
		os.Exit(1)
	}
	fmt.Println(colorGreen + "  ✓ Normal operation verified" + colorReset)
	fmt.Println()

	// PHASE 2: Kill an upstream and verify failover
	if !*skipKill {
		fmt.Println(colorBlue + "━━━ PHASE 2: Upstream Failure & Failover ━━━" + colorReset)
		fmt.Printf("Killing upstream on port %d...\n", *upstreamPort)

		if err := killUpstream(*upstreamPort); err != nil {
			fmt.Printf(colorYellow+"  Warning: Could not kill upstream: %v\n"+colorReset, err)
		} else {
			fmt.Printf(colorGreen+"  ✓ Upstream on port %d killed\n"+colorReset, *upstreamPort)
		}

		time.Sleep(500 * time.Millisecond)

		fmt.Println("\n  Sending requests (should fail over to the remaining upstreams)...")
		successCount := 0
		for i := 0; i < *requests; i++ {
			resp, upstream, err := sendRequest(client, *gatewayURL)
			if err != nil {
				fmt.Printf(colorRed+"  Request %d: ERROR - %v\n"+colorReset, i+1, err)
				continue
			}
			if resp.StatusCode < 500 {
				successCount++
			} else {
				fmt.Printf(colorYellow+"  Request %d: Upstream=%s Status=%d\n"+colorReset, i+1, upstream, resp.StatusCode)
			}
			resp.Body.Close()
		}

		fmt.Printf("\n  Results: %d/%d successful\n", successCount, *requests)
		if successCount == *requests {
			fmt.Println(colorGreen + "  ✓ All requests succeeded (failover working!)" + colorReset)
		} else {
			fmt.Println(colorYellow + "  ⚠ Some requests failed (check gateway logs)" + colorReset)
		}
		fmt.Println()
	}

	// PHASE 3: Check circuit state
	fmt.Println(colorBlue + "━━━ PHASE 3: Circuit Breaker Status ━━━" + colorReset)
	fmt.Println("Checking /circuits endpoint...")

	dashboard, err := getCircuits(client, *gatewayURL+"/circuits")
	if err != nil {
		fmt.Printf(colorYellow+"  Could not fetch circuit status: %v\n"+colorReset, err)
	} else {
		if open, ok := dashboard["open_circuits"].([]interface{}); ok && len(open) > 0 {
			fmt.Println("\n  Open circuits:")
			for _, host := range open {
				fmt.Printf("    %s%v%s\n", colorRed, host, colorReset)
			}
		} else {
			fmt.Println("\n  No open circuits.")
		}

		if circuits, ok := dashboard["circuits"].(map[string]interface{}); ok {
			fmt.Println("\n  Per-host state:")
			for host, data := range circuits {
				if cs, ok := data.(map[string]interface{}); ok {
					state, _ := cs["state"].(string)
					failures := int(cs["failure_count"].(float64))
					color := colorGreen
					if state == "OPEN" {
						color = colorRed
					} else if state == "HALF-OPEN" {
						color = colorYellow
					}
					fmt.Printf("    %s → %s%s%s (failures: %d)\n", host, color, state, colorReset, failures)
				}
			}
		}
	}
	fmt.Println()

	// PHASE 4: Request body handling
	fmt.Println(colorBlue + "━━━ PHASE 4: POST Behavior ━━━" + colorReset)
	fmt.Println("Testing POST request behavior (bodies cannot be replayed)...")

	postReq, _ := http.NewRequest("POST", *gatewayURL+"/test", strings.NewReader(`{"test":"data"}`))
	postReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := client.Do(postReq)
	duration := time.Since(start)

	if err != nil {
		fmt.Printf("  POST request failed: %v (took %v)\n", err, duration)
	} else {
		fmt.Printf("  POST request: Status=%d (took %v)\n", resp.StatusCode, duration)
		resp.Body.Close()
	}
	fmt.Println(colorGreen + "  ✓ POST behavior verified" + colorReset)
	fmt.Println()

	// Summary
	fmt.Println(colorCyan + "╔════════════════════════════════════════════════════════════════╗" + colorReset)
	fmt.Println(colorCyan + "║                    TEST COMPLETE                               ║" + colorReset)
	fmt.Println(colorCyan + "╚════════════════════════════════════════════════════════════════╝" + colorReset)
	fmt.Println()
	fmt.Println("Key behaviors verified:")
	fmt.Println("  1. Traffic flows through the configured upstreams")
	fmt.Println("  2. Failover when an upstream dies (GET requests)")
	fmt.Println("  3. Circuit state reported on /circuits")
	fmt.Println("  4. POST requests are not replayed into a second upstream")
	fmt.Println()
	fmt.Println("Restart the killed upstream and watch the circuit close again,")
	fmt.Println("either through the health prober or the half-open trial.")
}

func sendRequest(client *http.Client, url string) (*http.Response, string, error) {
	req, err := http.NewRequest("GET", url+"/test", nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", err
	}

	upstream := resp.Header.Get("X-Upstream")
	return resp, upstream, nil
}

func killUpstream(port int) error {
	cmd := exec.Command("lsof", "-ti", fmt.Sprintf(":%d", port))
	output, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("no process found on port %d", port)
	}

	pid := strings.TrimSpace(string(output))
	if pid == "" {
		return fmt.Errorf("no process found on port %d", port)
	}

	killCmd := exec.Command("kill", pid)
	return killCmd.Run()
}

func getCircuits(client *http.Client, url string) (map[string]interface{}, error) {
	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var dashboard map[string]interface{}
	if err := json.Unmarshal(body, &dashboard); err != nil {
		return nil, err
	}

	return dashboard, nil
}
