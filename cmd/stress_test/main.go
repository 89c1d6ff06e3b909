package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/stockledger/internal/core/domain"
)

const (
	defaultBaseURL = "http://localhost:8080"
	itemID         = "stress-item"
	totalMembers   = 50
)

// stress_test drives concurrent checkouts of one item against a running
// server. Seed stress-item first; every member carts one unit of it.
func main() {
	baseURL := os.Getenv("STOCKLEDGER_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client := &http.Client{Timeout: 10 * time.Second}

	before, err := reconcile(client, baseURL)
	if err != nil {
		log.Fatalf("failed to read stock: %v", err)
	}
	initialStock := before.Actual

	runID := uuid.NewString()[:8]
	members := make([]string, totalMembers)
	for i := range members {
		members[i] = fmt.Sprintf("stress-%s-%d", runID, i)
		status, err := post(client, baseURL+"/cart/items", map[string]any{
			"memberId": members[i],
			"itemId":   itemID,
			"quantity": 1,
		}, nil)
		if err != nil || status != http.StatusCreated {
			log.Fatalf("failed to fill cart of %s: status %d: %v", members[i], status, err)
		}
	}

	var (
		successCount  atomic.Int32
		rejectedCount atomic.Int32
		conflictCount atomic.Int32
		errorCount    atomic.Int32
		wg            sync.WaitGroup
	)
	start := time.Now()

	for _, member := range members {
		wg.Add(1)
		go func(member string) {
			defer wg.Done()

			status, err := post(client, baseURL+"/checkout/"+member, nil, map[string]string{"Idempotency-Key": uuid.NewString()})
			switch {
			case err != nil:
				errorCount.Add(1)
			case status == http.StatusCreated:
				successCount.Add(1)
			case status == http.StatusBadRequest:
				rejectedCount.Add(1)
			case status == http.StatusConflict:
				conflictCount.Add(1)
			default:
				errorCount.Add(1)
			}
		}(member)
	}

	wg.Wait()
	elapsed := time.Since(start)

	after, err := reconcile(client, baseURL)
	if err != nil {
		log.Fatalf("failed to reconcile: %v", err)
	}

	success := int(successCount.Load())
	expectedSuccess := min(initialStock, totalMembers)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Checkouts:        %d\n", totalMembers)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Out of stock:     %d\n", rejectedCount.Load())
	fmt.Printf("Conflicts:        %d\n", conflictCount.Load())
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Printf("Final Stock:      %d\n", after.Actual)
	fmt.Println("==========================================")

	failed := false
	if conflictCount.Load() == 0 && success != expectedSuccess {
		fmt.Printf("FAIL: expected %d successful checkouts, got %d\n", expectedSuccess, success)
		failed = true
	}
	if after.Actual != initialStock-success {
		fmt.Printf("FAIL: expected final stock %d, got %d\n", initialStock-success, after.Actual)
		failed = true
	}
	if !after.OK {
		fmt.Printf("FAIL: ledger drift, expected %d from journal, actual %d\n", after.Expected, after.Actual)
		failed = true
	}
	if failed {
		os.Exit(1)
	}
	fmt.Println("PASS: no oversell and the ledger reconciles")
}

func post(client *http.Client, url string, body any, header map[string]string) (int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, err
		}
	}

	req, err := http.NewRequest(http.MethodPost, url, &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func reconcile(client *http.Client, baseURL string) (domain.ReconcileReport, error) {
	resp, err := client.Get(baseURL + "/stock/" + itemID + "/reconcile")
	if err != nil {
		return domain.ReconcileReport{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.ReconcileReport{}, fmt.Errorf("reconcile %s: status %d", itemID, resp.StatusCode)
	}

	var report domain.ReconcileReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return domain.ReconcileReport{}, err
	}
	return report, nil
}
