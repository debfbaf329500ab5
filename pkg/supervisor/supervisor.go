// Package supervisor composes the process-supervisor configuration from
// per-service fragments. Each service directory under a configured root
// carries a service.yaml describing one managed program; fragments are
// aggregated, checked for duplicates, and filtered by the enabled/disabled
// lists before provisioning renders them.
package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/baselayer/pkg/config"
)

// FragmentFile is the filename looked for in each service directory
const FragmentFile = "service.yaml"

// All is the wildcard matching every service in enabled/disabled lists
const All = "*"

// Service is one supervised program described by a fragment
type Service struct {
	Name        string            `yaml:"name"`
	Command     string            `yaml:"command"`
	Directory   string            `yaml:"directory,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty"`
	// Processes scales the program; process i listens on base port + i
	Processes   int  `yaml:"processes,omitempty"`
	AutoRestart bool `yaml:"auto_restart,omitempty"`

	// Source records which fragment declared the service
	Source string `yaml:"-"`
}

// Discover walks the service roots and loads every fragment found. Two
// fragments declaring the same service name is a configuration error.
func Discover(roots []string) ([]Service, error) {
	byName := make(map[string]Service)
	var names []string

	for _, root := range roots {
		entries, err := os.ReadDir(root)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read service root %s: %w", root, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			path := filepath.Join(root, entry.Name(), FragmentFile)
			svc, err := loadFragment(path)
			if os.IsNotExist(err) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if prev, dup := byName[svc.Name]; dup {
				return nil, fmt.Errorf("service %q declared twice: %s and %s", svc.Name, prev.Source, svc.Source)
			}
			byName[svc.Name] = svc
			names = append(names, svc.Name)
		}
	}

	sort.Strings(names)
	services := make([]Service, 0, len(names))
	for _, name := range names {
		services = append(services, byName[name])
	}
	return services, nil
}

func loadFragment(path string) (Service, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Service{}, err
	}
	var svc Service
	if err := yaml.Unmarshal(data, &svc); err != nil {
		return Service{}, fmt.Errorf("failed to parse fragment %s: %w", path, err)
	}
	if svc.Name == "" {
		return Service{}, fmt.Errorf("fragment %s declares no service name", path)
	}
	if svc.Command == "" {
		return Service{}, fmt.Errorf("fragment %s (service %q) declares no command", path, svc.Name)
	}
	if svc.Processes <= 0 {
		svc.Processes = 1
	}
	svc.Source = path
	return svc, nil
}

// Filter applies the disabled and enabled lists. Disabled removes named
// services (or all via "*"); enabled re-adds them. A service named in both
// lists is a hard configuration error, as is "*" in both.
func Filter(services []Service, disabled, enabled []string) ([]Service, error) {
	disabledSet := toSet(disabled)
	enabledSet := toSet(enabled)

	for name := range disabledSet {
		if enabledSet[name] {
			return nil, fmt.Errorf("service %q is both disabled and enabled", name)
		}
	}

	var kept []Service
	for _, svc := range services {
		off := disabledSet[All] || disabledSet[svc.Name]
		on := enabledSet[All] || enabledSet[svc.Name]
		if off && !on {
			continue
		}
		kept = append(kept, svc)
	}
	return kept, nil
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// Compose discovers and filters services per the services.* configuration
func Compose(cfg *config.Config) ([]Service, error) {
	roots := cfg.StringSlice("services.paths")
	services, err := Discover(roots)
	if err != nil {
		return nil, err
	}
	return Filter(services,
		cfg.StringSlice("services.disabled"),
		cfg.StringSlice("services.enabled"))
}
