package integration

import (
	"testing"

	"github.com/metorial/bluefox"
	"github.com/metorial/bluefox/internal/paneltest"
)

func StartPanel(t *testing.T, servers map[string]string) (*paneltest.Panel, *bluefox.Client) {
	t.Helper()

	panel := paneltest.New("integration-token")
	for id, name := range servers {
		panel.AddServer(id, name)
	}

	server, baseURL := panel.Start()
	t.Cleanup(server.Close)

	client, err := bluefox.New(panel.Token, bluefox.WithBaseURL(baseURL))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return panel, client
}
