package discovery

import (
	"fmt"
	"net"
	"strconv"

	consul "github.com/hashicorp/consul/api"
)

const DefaultService = "bluefox-panel"

type ServiceDiscovery struct {
	consulAddr string
	client     *consul.Client
}

func NewServiceDiscovery(consulAddr string) (*ServiceDiscovery, error) {
	config := consul.DefaultConfig()
	config.Address = consulAddr

	client, err := consul.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("create consul client: %w", err)
	}

	return &ServiceDiscovery{
		consulAddr: consulAddr,
		client:     client,
	}, nil
}

// DiscoverPanel returns the API base URL of the first healthy instance of
// service. Instances tagged "http" are addressed over plain HTTP.
func (sd *ServiceDiscovery) DiscoverPanel(service string) (string, error) {
	if service == "" {
		service = DefaultService
	}

	services, _, err := sd.client.Health().Service(service, "", true, nil)
	if err != nil {
		return "", fmt.Errorf("query consul: %w", err)
	}

	if len(services) == 0 {
		return "", fmt.Errorf("no healthy %s services found", service)
	}

	entry := services[0]
	addr := entry.Service.Address
	if addr == "" {
		addr = entry.Node.Address
	}

	scheme := "https"
	for _, tag := range entry.Service.Tags {
		if tag == "http" {
			scheme = "http"
			break
		}
	}

	host := net.JoinHostPort(addr, strconv.Itoa(entry.Service.Port))
	return fmt.Sprintf("%s://%s/api", scheme, host), nil
}
