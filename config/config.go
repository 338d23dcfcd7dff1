// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package config holds the repository services configuration: the
// local collection's identity, the metadata exchange policy and the
// cohorts to join. The file format is YAML; Read applies defaults
// and validates, so an embedding server works with a complete,
// checked configuration.
package config

import (
	"os"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"gopkg.in/yaml.v3"

	"github.com/juju/metafed/bus"
	"github.com/juju/metafed/cohort"
	"github.com/juju/metafed/core/event"
	"github.com/juju/metafed/core/typedef"
)

const (
	// DefaultServerUserID is the identity stamped on operations the
	// server performs on its own behalf, such as storing reference
	// copies, when the configuration names none.
	DefaultServerUserID = "metafed"

	// DefaultQueueSize bounds a cohort's outbound event queue when
	// the configuration names no size.
	DefaultQueueSize = 512
)

// Cohort configures one cohort membership.
type Cohort struct {
	// Name is the cohort's name; it selects the bus topic.
	Name string `yaml:"name"`

	// BusConnection carries the transport-specific connection
	// details. The core passes it through opaquely to whichever bus
	// implementation the embedding server selects.
	BusConnection map[string]interface{} `yaml:"bus-connection,omitempty"`

	// QueueSize bounds the outbound event queue for this cohort.
	// Zero takes DefaultQueueSize.
	QueueSize int `yaml:"queue-size,omitempty"`

	// OverflowPolicy says what a full outbound queue does with a new
	// event. Empty takes bus.DropOldest.
	OverflowPolicy bus.OverflowPolicy `yaml:"overflow-policy,omitempty"`
}

// Validate returns an error if the cohort configuration is not
// usable.
func (c Cohort) Validate() error {
	if c.Name == "" {
		return errors.NotValidf("cohort with empty name")
	}
	if c.QueueSize < 0 {
		return errors.NotValidf("cohort %q queue size %d", c.Name, c.QueueSize)
	}
	if c.OverflowPolicy != "" {
		if err := c.OverflowPolicy.Validate(); err != nil {
			return errors.Annotatef(err, "cohort %q", c.Name)
		}
	}
	return nil
}

// Config is the configuration surface of the repository services.
type Config struct {
	// LocalMetadataCollectionID is the immutable UUID identifying
	// the local collection. Changing it orphans every instance the
	// collection has ever homed, so it is fixed at first start.
	LocalMetadataCollectionID string `yaml:"local-metadata-collection-id"`

	// LocalMetadataCollectionName is the collection's display name.
	LocalMetadataCollectionName string `yaml:"local-metadata-collection-name,omitempty"`

	// LocalServerName, LocalServerType and LocalOrganizationName
	// identify the server carrying the collection; they travel on
	// every event this member originates.
	LocalServerName       string `yaml:"local-server-name"`
	LocalServerType       string `yaml:"local-server-type,omitempty"`
	LocalOrganizationName string `yaml:"local-organization-name,omitempty"`

	// LocalServerUserID is the identity stamped on the server's own
	// repository maintenance operations. Empty takes
	// DefaultServerUserID.
	LocalServerUserID string `yaml:"local-server-user-id,omitempty"`

	// ProduceEventsForRealConnector gates announcements of local
	// repository changes to the cohorts. Protocol traffic is sent
	// regardless.
	ProduceEventsForRealConnector bool `yaml:"produce-events-for-real-connector"`

	// SaveExchangeRule says how much of the cohorts' metadata this
	// member stores. Empty takes cohort.RuleAll.
	SaveExchangeRule cohort.Rule `yaml:"save-exchange-rule,omitempty"`

	// SelectedTypesToProcess names the admitted types under
	// SELECTED_TYPEDEFS.
	SelectedTypesToProcess []string `yaml:"selected-types-to-process,omitempty"`

	// Cohorts lists the cohorts this member joins.
	Cohorts []Cohort `yaml:"cohorts,omitempty"`

	// SecurityConnection carries the security verifier's connection
	// details, passed through opaquely.
	SecurityConnection map[string]interface{} `yaml:"security-connection,omitempty"`
}

// Default returns a baseline configuration for the named collection
// and server. Callers still choose the exchange policy and cohorts.
func Default(collectionID, serverName string) Config {
	config := Config{
		LocalMetadataCollectionID:     collectionID,
		LocalServerName:               serverName,
		ProduceEventsForRealConnector: true,
	}
	config.applyDefaults()
	return config
}

func (c *Config) applyDefaults() {
	if c.LocalServerUserID == "" {
		c.LocalServerUserID = DefaultServerUserID
	}
	if c.SaveExchangeRule == "" {
		c.SaveExchangeRule = cohort.RuleAll
	}
	for i := range c.Cohorts {
		if c.Cohorts[i].QueueSize == 0 {
			c.Cohorts[i].QueueSize = DefaultQueueSize
		}
		if c.Cohorts[i].OverflowPolicy == "" {
			c.Cohorts[i].OverflowPolicy = bus.DropOldest
		}
	}
}

// Validate returns an error if the configuration is incomplete or
// inconsistent.
func (c Config) Validate() error {
	if c.LocalMetadataCollectionID == "" {
		return errors.NotValidf("empty local-metadata-collection-id")
	}
	if _, err := uuid.Parse(c.LocalMetadataCollectionID); err != nil {
		return errors.NotValidf("local-metadata-collection-id %q", c.LocalMetadataCollectionID)
	}
	if c.LocalServerName == "" {
		return errors.NotValidf("empty local-server-name")
	}
	if err := c.SaveExchangeRule.Validate(); err != nil {
		return errors.Trace(err)
	}
	if c.SaveExchangeRule == cohort.RuleSelectedTypeDefs && len(c.SelectedTypesToProcess) == 0 {
		return errors.NotValidf("save-exchange-rule %q with no selected-types-to-process", c.SaveExchangeRule)
	}
	seen := make(map[string]bool, len(c.Cohorts))
	for _, cohortConfig := range c.Cohorts {
		if err := cohortConfig.Validate(); err != nil {
			return errors.Trace(err)
		}
		if seen[cohortConfig.Name] {
			return errors.NotValidf("duplicate cohort %q", cohortConfig.Name)
		}
		seen[cohortConfig.Name] = true
	}
	return nil
}

// Originator returns the event originator identifying this member on
// the cohort buses.
func (c Config) Originator() event.Originator {
	return event.Originator{
		MetadataCollectionID: c.LocalMetadataCollectionID,
		ServerName:           c.LocalServerName,
		ServerType:           c.LocalServerType,
		OrganizationName:     c.LocalOrganizationName,
	}
}

// ExchangeRule builds the configured exchange rule over the local
// type cache.
func (c Config) ExchangeRule(types *typedef.Cache) (*cohort.ExchangeRule, error) {
	rule, err := cohort.NewExchangeRule(c.SaveExchangeRule, c.SelectedTypesToProcess, types)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return rule, nil
}

// Parse decodes, defaults and validates a YAML configuration.
func Parse(data []byte) (Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, errors.Annotatef(err, "parsing configuration")
	}
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return Config{}, errors.Trace(err)
	}
	return config, nil
}

// Read loads the configuration from a file.
func Read(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Annotatef(err, "reading configuration")
	}
	config, err := Parse(data)
	if err != nil {
		return Config{}, errors.Annotatef(err, "configuration %q", path)
	}
	return config, nil
}

// Render returns the configuration as YAML, after validating it.
func (c Config) Render() ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, errors.Annotatef(err, "rendering configuration")
	}
	return data, nil
}

// Write stores the configuration in a file readable only by the
// server's user.
func (c Config) Write(path string) error {
	data, err := c.Render()
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Annotatef(os.WriteFile(path, data, 0600), "writing configuration")
}
