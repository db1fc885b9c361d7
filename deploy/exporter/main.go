// Docker metadata exporter for the compose stack (server, worker, postgres,
// redis, redpanda). Exposes one gauge per container so Grafana panels can
// join container metrics with compose service names.
package main

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var containerMeta = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "container_meta_info",
		Help: "Container metadata info",
	},
	[]string{"id", "name", "image", "com_docker_compose_service", "state", "full_id"},
)

func init() {
	prometheus.MustRegister(containerMeta)
}

func collect() {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		log.Printf("docker client: %v", err)
		return
	}
	defer cli.Close()

	containers, err := cli.ContainerList(context.Background(), container.ListOptions{All: true})
	if err != nil {
		log.Printf("list containers: %v", err)
		return
	}

	containerMeta.Reset()
	for _, c := range containers {
		fullID := c.ID
		shortID := fullID
		if len(fullID) > 12 {
			shortID = fullID[:12]
		}
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		service := c.Labels["com.docker.compose.service"]
		if service == "" {
			service = name
		}
		containerMeta.WithLabelValues(shortID, name, c.Image, service, c.State, fullID).Set(1)
	}
}

func main() {
	go func() {
		for {
			collect()
			time.Sleep(15 * time.Second)
		}
	}()

	http.Handle("/metrics", promhttp.Handler())
	log.Println("docker meta exporter listening on :8000")
	log.Fatal(http.ListenAndServe(":8000", nil))
}
