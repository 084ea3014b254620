package bluefox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/metorial/bluefox/internal/router"
)

type PowerAction string

const (
	PowerStart   PowerAction = "start"
	PowerStop    PowerAction = "stop"
	PowerRestart PowerAction = "restart"
	PowerKill    PowerAction = "kill"
)

var PowerActions = []PowerAction{PowerStart, PowerStop, PowerRestart, PowerKill}

func (a PowerAction) Valid() bool {
	for _, known := range PowerActions {
		if a == known {
			return true
		}
	}
	return false
}

type SFTPDetails struct {
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

type Limits struct {
	Memory int64 `json:"memory"`
	Swap   int64 `json:"swap"`
	Disk   int64 `json:"disk"`
	IO     int64 `json:"io"`
	CPU    int64 `json:"cpu"`
}

type FeatureLimits struct {
	Databases   int `json:"databases"`
	Allocations int `json:"allocations"`
	Backups     int `json:"backups"`
}

type ServerMeta struct {
	ServerOwner bool     `json:"server_owner"`
	Permissions []string `json:"permissions"`
}

type RelationshipList struct {
	Object string            `json:"object"`
	Data   []json.RawMessage `json:"data"`
}

type Relationships struct {
	Allocations RelationshipList `json:"allocations"`
	Variables   RelationshipList `json:"variables"`
}

// Server is a snapshot of a panel server taken when it was fetched. Methods
// act on the remote server and never refresh the snapshot.
type Server struct {
	Type          string         `json:"type"`
	IsOwner       bool           `json:"is_owner"`
	ID            string         `json:"id"`
	InternalID    *int64         `json:"internal_id"`
	UUID          *uuid.UUID     `json:"uuid"`
	Name          string         `json:"name"`
	Node          string         `json:"node"`
	SFTP          SFTPDetails    `json:"sftp"`
	Limits        *Limits        `json:"limits"`
	Invocation    string         `json:"invocation"`
	DockerImage   string         `json:"docker_image"`
	EggFeatures   []string       `json:"egg_features"`
	FeatureLimits *FeatureLimits `json:"feature_limits"`
	Suspended     bool           `json:"suspended"`
	Installing    bool           `json:"installing"`
	Transferring  bool           `json:"transferring"`
	Meta          ServerMeta     `json:"meta"`
	Relationships *Relationships `json:"relationships"`

	client *Client
}

type serverPayload struct {
	Object     string          `json:"object"`
	Attributes json.RawMessage `json:"attributes"`
	Meta       *struct {
		IsServerOwner   bool     `json:"is_server_owner"`
		UserPermissions []string `json:"user_permissions"`
	} `json:"meta"`
}

type serverAttributes struct {
	ServerOwner bool   `json:"server_owner"`
	Identifier  string `json:"identifier"`
	InternalID  *int64 `json:"internal_id"`
	UUID        string `json:"uuid"`
	Name        string `json:"name"`
	Node        string `json:"node"`
	SFTPDetails *struct {
		IP   string `json:"ip"`
		Port int    `json:"port"`
	} `json:"sftp_details"`
	Limits         *Limits        `json:"limits"`
	Invocation     string         `json:"invocation"`
	DockerImage    string         `json:"docker_image"`
	EggFeatures    []string       `json:"egg_features"`
	FeatureLimits  *FeatureLimits `json:"feature_limits"`
	IsSuspended    bool           `json:"is_suspended"`
	IsInstalling   bool           `json:"is_installing"`
	IsTransferring bool           `json:"is_transferring"`
	Relationships  *Relationships `json:"relationships"`
}

// ParseServer builds a detached Server from a raw panel payload. The
// returned record has no client, so its remote methods fail.
func ParseServer(data []byte) (*Server, error) {
	return newServer(nil, data)
}

func newServer(c *Client, data json.RawMessage) (*Server, error) {
	var payload serverPayload
	if len(data) > 0 {
		if err := unmarshalLenient(data, &payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedServer, err)
		}
	}

	raw := bytes.TrimSpace(payload.Attributes)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, fmt.Errorf("%w: missing attributes object", ErrMalformedServer)
	}

	var attrs serverAttributes
	if err := unmarshalLenient(raw, &attrs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedServer, err)
	}

	s := &Server{
		Type:          payload.Object,
		IsOwner:       attrs.ServerOwner,
		ID:            attrs.Identifier,
		InternalID:    attrs.InternalID,
		Name:          attrs.Name,
		Node:          attrs.Node,
		Limits:        attrs.Limits,
		Invocation:    attrs.Invocation,
		DockerImage:   attrs.DockerImage,
		EggFeatures:   attrs.EggFeatures,
		FeatureLimits: attrs.FeatureLimits,
		Suspended:     attrs.IsSuspended,
		Installing:    attrs.IsInstalling,
		Transferring:  attrs.IsTransferring,
		Meta:          ServerMeta{Permissions: []string{}},
		Relationships: attrs.Relationships,
		client:        c,
	}
	if s.Type == "" {
		s.Type = "server"
	}
	if id, err := uuid.Parse(attrs.UUID); err == nil {
		s.UUID = &id
	}
	if attrs.SFTPDetails != nil {
		s.SFTP = SFTPDetails{IP: attrs.SFTPDetails.IP, Port: attrs.SFTPDetails.Port}
	}
	if payload.Meta != nil {
		s.Meta.ServerOwner = payload.Meta.IsServerOwner
		if payload.Meta.UserPermissions != nil {
			s.Meta.Permissions = payload.Meta.UserPermissions
		}
	}

	return s, nil
}

// unmarshalLenient ignores fields whose JSON type does not match; they keep
// their zero value.
func unmarshalLenient(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return nil
	}
	return err
}

func (s *Server) String() string {
	if s.Name == "" {
		return "Unknown Server"
	}
	return s.Name
}

func (s *Server) route() (router.Route, error) {
	if s.client == nil {
		return router.Route{}, fmt.Errorf("server %s is not bound to a client", s.ID)
	}
	return s.client.serverRoute(s.ID), nil
}

func (s *Server) Start(ctx context.Context) error {
	return s.Power(ctx, PowerStart)
}

func (s *Server) Stop(ctx context.Context) error {
	return s.Power(ctx, PowerStop)
}

func (s *Server) Restart(ctx context.Context) error {
	return s.Power(ctx, PowerRestart)
}

func (s *Server) Kill(ctx context.Context) error {
	return s.Power(ctx, PowerKill)
}

// Power sends a power signal. The server is fetched first and the signal is
// only sent if that fetch succeeds.
func (s *Server) Power(ctx context.Context, action PowerAction) error {
	if !action.Valid() {
		names := make([]string, len(PowerActions))
		for i, a := range PowerActions {
			names[i] = fmt.Sprintf("%q", a)
		}
		return fmt.Errorf("%w: power action must be one of %s but received %q",
			ErrInvalidArgument, strings.Join(names, ", "), action)
	}
	if s.ID == "" {
		return ErrUnknownServer
	}

	route, err := s.route()
	if err != nil {
		return err
	}

	if _, err := route.Get(ctx); err != nil {
		return fmt.Errorf("%w %s: %v", ErrUnknownServer, s.ID, err)
	}

	_, err = route.Path("power").Post(ctx, router.WithData(map[string]string{
		"signal": string(action),
	}))
	if err != nil {
		return fmt.Errorf("send %s signal to %s: %w", action, s.ID, err)
	}
	return nil
}

func (s *Server) SetName(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidArgument)
	}

	route, err := s.route()
	if err != nil {
		return err
	}

	_, err = route.Path("settings", "rename").Post(ctx, router.WithData(map[string]string{
		"name": name,
	}))
	if err != nil {
		return fmt.Errorf("rename %s: %w", s.ID, err)
	}
	return nil
}

func (s *Server) Reinstall(ctx context.Context) error {
	route, err := s.route()
	if err != nil {
		return err
	}

	if _, err := route.Path("settings", "reinstall").Post(ctx); err != nil {
		return fmt.Errorf("reinstall %s: %w", s.ID, err)
	}
	return nil
}

// Delete removes the server through the application API. force=true hits
// application/servers/{id}; force=false hits application/servers/{id}/force.
func (s *Server) Delete(ctx context.Context, force bool) error {
	if s.client == nil {
		return fmt.Errorf("server %s is not bound to a client", s.ID)
	}

	route := s.client.api().Path("application", "servers", s.ID)
	if !force {
		route = route.Path("force")
	}

	if _, err := route.Delete(ctx); err != nil {
		return fmt.Errorf("delete %s: %w", s.ID, err)
	}
	return nil
}

func (s *Server) Send(ctx context.Context, command string) error {
	if command == "" {
		return fmt.Errorf("%w: command is required", ErrInvalidArgument)
	}

	route, err := s.route()
	if err != nil {
		return err
	}

	_, err = route.Path("command").Post(ctx, router.WithData(map[string]string{
		"command": command,
	}))
	if err != nil {
		return fmt.Errorf("send command to %s: %w", s.ID, err)
	}
	return nil
}
