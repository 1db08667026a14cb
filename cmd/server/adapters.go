package main

import (
	"github.com/hafizsameer11/superCrm/internal/integration/driver"
	integrationservice "github.com/hafizsameer11/superCrm/internal/integration/service"
)

// registryAdapter bridges the driver registry to the project service, which
// speaks in terms of the integration client's driver interface.
type registryAdapter struct {
	registry *driver.Registry
}

func (r registryAdapter) Resolve(slug string) integrationservice.Driver {
	return r.registry.Resolve(slug)
}
