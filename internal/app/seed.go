package app

import (
	"errors"
	"fmt"
	"time"

	"snagaudit/pkg/domain"
	"snagaudit/pkg/store"
)

// ErrAlreadySeeded refuses re-seeding a store that holds projects.
var ErrAlreadySeeded = errors.New("store already contains projects")

// SeedResult reports what the demo seed created.
type SeedResult struct {
	Users    int    `json:"users"`
	Projects int    `json:"projects"`
	Nodes    int    `json:"nodes"`
	Points   int    `json:"points"`
	Project  string `json:"project_id"`
}

// SeedDemo loads the reference dataset: one project with 3 towers of 10
// floors, 4 flats per floor and 7 rooms per flat, a standard quality
// template, and a handful of users. Refused when any project already exists.
func (a *App) SeedDemo() (SeedResult, error) {
	existing, err := a.store.ListProjects()
	if err != nil {
		return SeedResult{}, err
	}
	if len(existing) > 0 {
		return SeedResult{}, ErrAlreadySeeded
	}

	now := time.Now().UTC()
	res := SeedResult{}

	seedUsers := []domain.User{
		{ID: store.NewID(), Name: "Rajesh Kumar", Phone: "+919876543210", Role: domain.RoleBuilder, CreatedAt: now},
		{ID: store.NewID(), Name: "Priya Sharma", Phone: "+919876543211", Role: domain.RoleAuditor, CreatedAt: now},
		{ID: store.NewID(), Name: "Amit Patel", Phone: "+919876543212", Role: domain.RoleAuditor, CreatedAt: now},
		{ID: store.NewID(), Name: "Sneha Reddy", Phone: "+919876543213", Role: domain.RoleAuditor, CreatedAt: now},
	}
	for _, u := range seedUsers {
		if err := a.store.SaveUser(u); err != nil {
			return SeedResult{}, fmt.Errorf("seed user: %w", err)
		}
		res.Users++
	}

	project := domain.Project{
		ID:        store.NewID(),
		Name:      "Skyline Residency",
		Location:  "Whitefield, Bangalore",
		CreatedAt: now,
	}
	if err := a.store.SaveProject(project); err != nil {
		return SeedResult{}, fmt.Errorf("seed project: %w", err)
	}
	res.Projects = 1
	res.Project = project.ID

	nodeCount, err := a.seedStructure(project)
	if err != nil {
		return SeedResult{}, err
	}
	res.Nodes = nodeCount

	pointCount, err := a.seedTemplate(project.ID)
	if err != nil {
		return SeedResult{}, err
	}
	res.Points = pointCount

	return res, nil
}

func (a *App) seedStructure(project domain.Project) (int, error) {
	count := 0
	save := func(n domain.StructureNode) error {
		if err := a.store.SaveStructureNode(n); err != nil {
			return fmt.Errorf("seed node %s: %w", n.Name, err)
		}
		count++
		return nil
	}

	root := domain.StructureNode{
		ID:        store.NewID(),
		ProjectID: project.ID,
		LevelType: domain.LevelProject,
		Name:      project.Name,
	}
	if err := save(root); err != nil {
		return 0, err
	}

	rooms := []string{
		"Living Room", "Master Bedroom", "Bedroom 2", "Kitchen",
		"Bathroom 1", "Bathroom 2", "Balcony",
	}
	for blockIdx, blockName := range []string{"A", "B", "C"} {
		block := domain.StructureNode{
			ID:         store.NewID(),
			ProjectID:  project.ID,
			ParentID:   root.ID,
			LevelType:  domain.LevelBlock,
			Name:       "Tower " + blockName,
			OrderIndex: blockIdx,
		}
		if err := save(block); err != nil {
			return 0, err
		}
		for floor := 1; floor <= 10; floor++ {
			floorNode := domain.StructureNode{
				ID:         store.NewID(),
				ProjectID:  project.ID,
				ParentID:   block.ID,
				LevelType:  domain.LevelFloor,
				Name:       fmt.Sprintf("Floor %d", floor),
				OrderIndex: floor,
			}
			if err := save(floorNode); err != nil {
				return 0, err
			}
			for unit := 1; unit <= 4; unit++ {
				unitNode := domain.StructureNode{
					ID:         store.NewID(),
					ProjectID:  project.ID,
					ParentID:   floorNode.ID,
					LevelType:  domain.LevelUnit,
					Name:       fmt.Sprintf("Flat %02d", unit),
					OrderIndex: unit,
				}
				if err := save(unitNode); err != nil {
					return 0, err
				}
				for roomIdx, roomName := range rooms {
					room := domain.StructureNode{
						ID:         store.NewID(),
						ProjectID:  project.ID,
						ParentID:   unitNode.ID,
						LevelType:  domain.LevelRoom,
						Name:       roomName,
						OrderIndex: roomIdx + 1,
					}
					if err := save(room); err != nil {
						return 0, err
					}
				}
			}
		}
	}
	return count, nil
}

func (a *App) seedTemplate(projectID string) (int, error) {
	template := domain.AuditTemplate{
		ID:        store.NewID(),
		ProjectID: projectID,
		Name:      "Standard Quality Checklist",
	}
	if err := a.store.SaveTemplate(template); err != nil {
		return 0, fmt.Errorf("seed template: %w", err)
	}

	type pointSpec struct {
		level     domain.LevelType
		name      string
		mandatory bool
		severity  domain.Severity
	}
	specs := []pointSpec{
		{domain.LevelUnit, "Main door alignment and operation", true, domain.SeverityHigh},
		{domain.LevelUnit, "Window frames properly fitted", true, domain.SeverityHigh},
		{domain.LevelUnit, "Electrical panel accessibility", true, domain.SeverityMedium},
		{domain.LevelUnit, "Water supply and drainage working", true, domain.SeverityHigh},
		{domain.LevelRoom, "Wall surface finish quality", true, domain.SeverityMedium},
		{domain.LevelRoom, "Floor tiles level and alignment", true, domain.SeverityHigh},
		{domain.LevelRoom, "Ceiling finish and light fittings", true, domain.SeverityMedium},
		{domain.LevelRoom, "Electrical switches and sockets working", true, domain.SeverityHigh},
		{domain.LevelRoom, "Door and window hardware functioning", false, domain.SeverityLow},
		{domain.LevelRoom, "Ventilation adequate", false, domain.SeverityLow},
		{domain.LevelRoom, "No visible cracks or damage", true, domain.SeverityHigh},
	}
	orderByLevel := map[domain.LevelType]int{}
	for _, spec := range specs {
		orderByLevel[spec.level]++
		point := domain.TemplateAuditPoint{
			ID:                  store.NewID(),
			TemplateID:          template.ID,
			ApplicableLevelType: spec.level,
			Name:                spec.name,
			IsMandatory:         spec.mandatory,
			Severity:            spec.severity,
			OrderIndex:          orderByLevel[spec.level],
		}
		if err := a.store.SaveTemplatePoint(point); err != nil {
			return 0, fmt.Errorf("seed point %s: %w", spec.name, err)
		}
	}
	return len(specs), nil
}
