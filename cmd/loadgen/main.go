package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Checkout load generator. Seeds one cart line per simulated user, then
// fires concurrent checkouts against a running server to exercise the
// reservation path under contention.
func main() {
	target := flag.String("target", "http://localhost:8080", "server base URL")
	productRef := flag.String("product", "flash-sale-item", "product to order")
	users := flag.Int("users", 50, "number of concurrent users")
	quantity := flag.Int("quantity", 1, "quantity per cart")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}

	// Seed carts sequentially so every checkout starts loaded.
	for i := 0; i < *users; i++ {
		owner := fmt.Sprintf("loadgen-user-%d", i)
		body, _ := json.Marshal(map[string]any{
			"product_ref": *productRef,
			"quantity":    *quantity,
		})
		req, _ := http.NewRequest(http.MethodPost, *target+"/api/cart/items", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-User-ID", owner)
		resp, err := client.Do(req)
		if err != nil {
			log.Fatalf("seed cart for %s: %v", owner, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			log.Fatalf("seed cart for %s: http %d", owner, resp.StatusCode)
		}
	}
	log.Printf("seeded %d carts with %d x %s", *users, *quantity, *productRef)

	var success, soldOut, paymentFailed, other atomic.Int32
	var wg sync.WaitGroup

	start := time.Now()
	for i := 0; i < *users; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			owner := fmt.Sprintf("loadgen-user-%d", id)
			body, _ := json.Marshal(map[string]any{
				"request_id":     fmt.Sprintf("loadgen-%d-%d", id, start.UnixNano()),
				"payment_method": "pm-loadgen",
				"shipping_address": map[string]string{
					"name":        owner,
					"line1":       "1 Test St",
					"city":        "Testville",
					"postal_code": "00000",
					"country":     "US",
				},
			})
			req, _ := http.NewRequest(http.MethodPost, *target+"/api/checkout", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("X-User-ID", owner)

			resp, err := client.Do(req)
			if err != nil {
				other.Add(1)
				return
			}
			resp.Body.Close()

			switch resp.StatusCode {
			case http.StatusCreated:
				success.Add(1)
			case http.StatusConflict:
				soldOut.Add(1)
			case http.StatusPaymentRequired:
				paymentFailed.Add(1)
			default:
				other.Add(1)
			}
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	log.Printf("done in %s", elapsed)
	log.Printf("success=%d sold_out=%d payment_failed=%d other=%d",
		success.Load(), soldOut.Load(), paymentFailed.Load(), other.Load())
}
