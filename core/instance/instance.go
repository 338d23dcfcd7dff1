// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package instance holds the metadata instance model exchanged between
// cohort members: entities, entity proxies, relationships,
// classifications and their polymorphic property values.
//
// Instances are plain values. Stores and processors that retain an
// instance beyond the lifetime of a call must take a Copy; nothing in
// this package shares internal state between copies.
package instance

import (
	"time"
)

// InstanceType identifies the type of an instance: the type
// definition's GUID and name together with the version of the
// definition the instance was last written against.
type InstanceType struct {
	GUID    string `json:"typeDefGUID"`
	Name    string `json:"typeDefName"`
	Version int64  `json:"typeDefVersion"`
}

// AuditHeader carries the type, provenance and audit trail common to
// every metadata instance, including classifications which have no
// GUID of their own.
type AuditHeader struct {
	Type                   InstanceType `json:"type"`
	Provenance             Provenance   `json:"instanceProvenanceType,omitempty"`
	MetadataCollectionID   string       `json:"metadataCollectionId,omitempty"`
	MetadataCollectionName string       `json:"metadataCollectionName,omitempty"`

	// ReplicatedBy is the metadata collection acting as the
	// replication point for an externally sourced instance.
	ReplicatedBy string `json:"replicatedBy,omitempty"`

	CreatedBy  string     `json:"createdBy,omitempty"`
	UpdatedBy  string     `json:"updatedBy,omitempty"`
	CreateTime time.Time  `json:"createTime"`
	UpdateTime *time.Time `json:"updateTime,omitempty"`

	// Version increases strictly with every state change made at the
	// instance's home collection.
	Version int64 `json:"version"`

	Status Status `json:"status,omitempty"`

	// StatusOnDelete records the status the instance held immediately
	// before it was soft-deleted, so a restore can put it back.
	StatusOnDelete Status `json:"statusOnDelete,omitempty"`
}

// Copy returns an independent copy of the header.
func (h AuditHeader) Copy() AuditHeader {
	ch := h
	if h.UpdateTime != nil {
		t := *h.UpdateTime
		ch.UpdateTime = &t
	}
	return ch
}

// Header extends AuditHeader with the unique identity carried by
// entities, entity proxies and relationships.
type Header struct {
	AuditHeader
	GUID        string `json:"guid"`
	InstanceURL string `json:"instanceURL,omitempty"`
}

// Copy returns an independent copy of the header.
func (h Header) Copy() Header {
	ch := h
	ch.AuditHeader = h.AuditHeader.Copy()
	return ch
}
