package main

import (
	"flag"
	"log"
	"net/netip"
	"os"
	"time"

	"Go2NetIDS/pkg/pcap"
)

func main() {
	outputFile := flag.String("o", "test.pcap", "Output pcap file path")
	benign := flag.Int("benign", 20, "Number of complete client/server exchanges")
	flood := flag.Int("flood", 500, "Number of SYN flood packets")
	land := flag.Bool("land", true, "Append a land packet")
	flag.Parse()

	f, err := os.Create(*outputFile)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	g, err := pcap.NewGenerator(f, time.Now().Add(-time.Minute))
	if err != nil {
		log.Fatal(err)
	}

	server := netip.MustParseAddr("192.168.1.1")
	services := []uint16{80, 443, 22, 53, 25}
	for i := 0; i < *benign; i++ {
		client := netip.AddrFrom4([4]byte{192, 168, 1, byte(10 + i%200)})
		port := services[i%len(services)]
		if port == 53 {
			err = g.UDP(client, server, uint16(40000+i), port, 40)
		} else {
			err = g.Handshake(client, server, uint16(40000+i), port, 200, 1200)
		}
		if err != nil {
			log.Fatalf("Failed to write benign traffic: %v", err)
		}
		// Spread sessions out so they do not share a time window.
		g.Advance(500 * time.Millisecond)
	}
	log.Printf("Wrote %d benign packets", g.Count())

	before := g.Count()
	g.Step = 100 * time.Microsecond
	if err := g.SYNFlood(netip.MustParseAddr("203.0.113.66"), server, 80, *flood); err != nil {
		log.Fatalf("Failed to write SYN flood: %v", err)
	}
	log.Printf("Wrote %d SYN flood packets", g.Count()-before)

	if *land {
		if err := g.Land(server, 139); err != nil {
			log.Fatalf("Failed to write land packet: %v", err)
		}
	}
	log.Printf("Successfully generated %d packets into %s.", g.Count(), *outputFile)
}
