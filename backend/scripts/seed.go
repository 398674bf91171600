package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"biograph/backend/internal/database"
	"biograph/backend/internal/graph"
	"biograph/backend/pkg/config"
	"biograph/backend/pkg/logger"
)

// Seeds a small glycolysis fragment imported twice, so the duplicate
// candidate and merge endpoints have something to work on.
func main() {
	reset := flag.Bool("reset", false, "Delete every node before seeding")
	copies := flag.Int("copies", 2, "Number of times the demo model is imported")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Initialize logger
	if err := logger.Init(cfg.Env, cfg.LogLevel); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting database seeding...")

	ctx := context.Background()
	driver, err := database.Connect(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
	if err != nil {
		log.Fatal("Failed to connect to Neo4j", zap.Error(err))
	}
	repo := database.NewRepository(driver, cfg.Neo4jDatabase)
	defer repo.Close(context.Background())

	if *reset {
		log.Info("Deleting existing data...")
		if err := deleteAll(ctx, driver, cfg.Neo4jDatabase); err != nil {
			log.Fatal("Failed to delete existing data", zap.Error(err))
		}
	}

	log.Info("Creating indexes...")
	if err := repo.EnsureConstraints(ctx); err != nil {
		log.Warn("Failed to create some indexes (may already exist)", zap.Error(err))
	}

	for i := 1; i <= *copies; i++ {
		changes := demoModel(fmt.Sprintf("glycolysis_v%d", i))
		for _, change := range changes {
			if err := repo.Commit(ctx, change); err != nil {
				log.Fatal("Failed to seed model", zap.String("target", change.TargetID()), zap.Error(err))
			}
		}
		log.Info("Model seeded", zap.Int("copy", i), zap.Int("changes", len(changes)))
	}

	log.Info("Database seeding completed successfully!")
}

func deleteAll(ctx context.Context, driver neo4j.DriverWithContext, db string) error {
	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite, DatabaseName: db})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		_, err := tx.Run(ctx, "MATCH (n) DETACH DELETE n", nil)
		return nil, err
	})
	return err
}

// demoModel builds the changes creating hexokinase: glucose + ATP -> G6P + ADP
func demoModel(modelID string) []graph.Change {
	var changes []graph.Change
	node := func(label string, props map[string]string) string {
		id := uuid.NewString()
		changes = append(changes, graph.Change{Kind: graph.ChangeUpsertNode, Node: graph.NewNode(id, label, props)})
		return id
	}
	edge := func(typ, start, end string, props map[string]string) {
		changes = append(changes, graph.Change{Kind: graph.ChangeUpsertEdge, Edge: graph.NewEdge(uuid.NewString(), typ, start, end, props)})
	}

	model := node("Model", map[string]string{"id": modelID, "name": "Glycolysis fragment"})
	cytosol := node("Compartment", map[string]string{
		"id":                "cytosol",
		"size":              "1",
		"spatialDimensions": "3",
		"constant":          "true",
		"bqbiol_is":         "http://identifiers.org/go/GO:0005829",
	})
	edge("IN_MODEL", cytosol, model, nil)

	species := map[string]string{
		"glucose": "http://identifiers.org/chebi/CHEBI:17234",
		"ATP":     "http://identifiers.org/chebi/CHEBI:15422",
		"G6P":     "http://identifiers.org/chebi/CHEBI:4170",
		"ADP":     "http://identifiers.org/chebi/CHEBI:16761",
	}
	ids := make(map[string]string, len(species))
	for _, name := range []string{"glucose", "ATP", "G6P", "ADP"} {
		ids[name] = node("Species", map[string]string{
			"id":                "s_" + name,
			"name":              name,
			"initialAmount":     "1.0",
			"boundaryCondition": "false",
			"bqbiol_is":         species[name],
		})
		edge("IN_COMPARTMENT", ids[name], cytosol, nil)
		edge("IN_MODEL", ids[name], model, nil)
	}

	hk := node("Reaction", map[string]string{
		"id":         "HK",
		"name":       "hexokinase",
		"reversible": "false",
		"bqbiol_is":  "http://identifiers.org/ec-code/2.7.1.1",
	})
	edge("IN_MODEL", hk, model, nil)
	edge("HAS_REACTANT", hk, ids["glucose"], map[string]string{"stoichiometry": "1"})
	edge("HAS_REACTANT", hk, ids["ATP"], map[string]string{"stoichiometry": "1"})
	edge("HAS_PRODUCT", hk, ids["G6P"], map[string]string{"stoichiometry": "1"})
	edge("HAS_PRODUCT", hk, ids["ADP"], map[string]string{"stoichiometry": "1"})

	km := node("Parameter", map[string]string{"id": "Km_glc", "value": "0.1", "constant": "true"})
	edge("HAS_PARAMETER", hk, km, nil)

	return changes
}
