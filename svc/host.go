package svc

import (
	"io"
	"net"
	"net/http"
	"time"
)

const ec2MetadataURL = "http://169.254.169.254/latest/meta-data/local-ipv4"

var metadataClient = &http.Client{Timeout: 200 * time.Millisecond}

// determineHost picks the address a service advertises itself under:
// the EC2 instance metadata service's local IP when running on EC2,
// else the host configured by the operator, else "localhost". Probing
// metadata first (rather than trusting config) matches how the
// original service picked its address when deployed onto ephemeral
// instances.
func determineHost(configuredHost string) string {
	if host, ok := ec2LocalIPv4(); ok {
		return host
	}
	if configuredHost != "" {
		return configuredHost
	}
	return "localhost"
}

func ec2LocalIPv4() (string, bool) {
	resp, err := metadataClient.Get(ec2MetadataURL)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", false
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false
	}
	ip := string(body)
	if net.ParseIP(ip) == nil {
		return "", false
	}
	return ip, true
}
