package main

import (
	"fmt"

	// Import all fleet-server/fleet-agent dependencies to measure binary size
	_ "github.com/containerd/containerd"
	_ "github.com/google/uuid"
	_ "github.com/hashicorp/raft"
	_ "github.com/hashicorp/raft-boltdb"
	_ "github.com/opencontainers/runtime-spec/specs-go"
	_ "github.com/prometheus/client_golang/prometheus"
	_ "github.com/rs/zerolog"
	_ "github.com/spf13/cobra"
	_ "google.golang.org/grpc"
	_ "gopkg.in/yaml.v3"
)

func main() {
	fmt.Println("Fleet Binary Size POC")
	fmt.Println("This minimal program imports all major fleet-server/fleet-agent dependencies.")
	fmt.Println("Build and check the binary size with: go build -o binary-size . && ls -lh binary-size")
}
