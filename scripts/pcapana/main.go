package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"Go2NetIDS/internal/engine/features"
	"Go2NetIDS/internal/engine/tracker"
	"Go2NetIDS/internal/model"
	"Go2NetIDS/pkg/pcap"
)

// pcapana prints every decodable packet of a capture file together with the
// connection flag and a few window features computed so far.
func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./scripts/pcapana/main.go <path_to_pcap_file>")
		os.Exit(1)
	}
	r := pcap.NewReader(os.Args[1], false)
	if err := r.Open(); err != nil {
		log.Fatal(err)
	}
	defer r.Close()

	t := tracker.New(tracker.Config{})
	agg := features.NewAggregator(t, features.DefaultTimeWindow, features.DefaultHostWindow)
	i := 0
	err := r.Run(context.Background(), func(pkt *model.Packet) {
		i++
		key := t.Observe(pkt)
		vec, err := agg.Compute(key)
		if err != nil {
			fmt.Printf("%6d %s (features: %v)\n", i, pkt.Summary(), err)
			return
		}
		fmt.Printf("%6d %s service=%s flag=%s count=%.0f srv_count=%.0f serror_rate=%.2f\n",
			i, pkt.Summary(), vec.Service, vec.Flag,
			vec.Get(features.Count), vec.Get(features.SrvCount), vec.Get(features.SerrorRate))
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%d packets, %d connections\n", i, t.Len())
}
