package core

import "gridcore/pkg/domain"

type (
	// Record aliases the domain component record handled by service operations.
	Record = domain.Record
	// Snapshot aliases the persisted store state.
	Snapshot = domain.Snapshot
	// ModelStore aliases the persistence contract the service runs over.
	ModelStore = domain.ModelStore
	// ModelTx aliases the mutable transaction scope.
	ModelTx = domain.ModelTx
	// ModelView aliases the read-only view scope.
	ModelView = domain.ModelView
	// ComponentType aliases the component family identifier.
	ComponentType = domain.ComponentType
)

const (
	ComponentBus         = domain.ComponentBus
	ComponentNode        = domain.ComponentNode
	ComponentLine        = domain.ComponentLine
	ComponentBranch      = domain.ComponentBranch
	ComponentTransformer = domain.ComponentTransformer
	ComponentGenerator   = domain.ComponentGenerator
	ComponentLoad        = domain.ComponentLoad
	ComponentShunt       = domain.ComponentShunt
	ComponentSwitch      = domain.ComponentSwitch
	ComponentStorage     = domain.ComponentStorage
)
