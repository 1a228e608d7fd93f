// Package knowledge maintains a Neo4j graph of articles and the topics they
// mention. The graph supplements answer citations with related coverage; it
// never contributes citations of its own.
package knowledge

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type Article struct {
	ID          string
	Title       string
	Source      string
	PublishedAt time.Time
	Topics      []string
}

type RelatedArticle struct {
	ID     string
	Title  string
	Source string
}

// Insight is what the graph knows about one article: its topics and other
// articles sharing at least one topic.
type Insight struct {
	Topics  []string
	Related []RelatedArticle
}

// Neo4jStore maintains and answers queries over the topic graph.
type Neo4jStore struct {
	driver neo4j.DriverWithContext
}

func NewNeo4jStore(driver neo4j.DriverWithContext) *Neo4jStore {
	return &Neo4jStore{driver: driver}
}

// SyncArticle upserts the article node and rebuilds its MENTIONS edges.
// Topics orphaned by the rewrite are removed.
func (s *Neo4jStore) SyncArticle(ctx context.Context, article Article) error {
	if s.driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	params := map[string]any{
		"id":        article.ID,
		"title":     article.Title,
		"source":    article.Source,
		"published": article.PublishedAt.UTC().Format(time.RFC3339),
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			MERGE (a:Article {id: $id})
			SET a.title = $title,
			    a.source = $source,
			    a.published_at = $published,
			    a.updated_at = datetime()
		`, params); err != nil {
			return nil, fmt.Errorf("upsert article node: %w", err)
		}

		if _, err := tx.Run(ctx, `
			MATCH (a:Article {id: $id})-[r:MENTIONS]->(:Topic)
			DELETE r
		`, params); err != nil {
			return nil, fmt.Errorf("clear existing topic relations: %w", err)
		}

		for _, topic := range article.Topics {
			if topic == "" {
				continue
			}
			if _, err := tx.Run(ctx, `
				MATCH (a:Article {id: $id})
				MERGE (t:Topic {name: $topic})
				MERGE (a)-[:MENTIONS]->(t)
			`, map[string]any{"id": article.ID, "topic": topic}); err != nil {
				return nil, fmt.Errorf("upsert topic relation: %w", err)
			}
		}

		return nil, nil
	})

	if err == nil {
		if _, cleanupErr := session.Run(ctx, `
			MATCH (t:Topic)
			WHERE NOT (t)<-[:MENTIONS]-(:Article)
			DELETE t
		`, nil); cleanupErr != nil {
			err = cleanupErr
		}
	}

	return err
}

func (s *Neo4jStore) ArticleInsights(ctx context.Context, articleIDs []string) (map[string]Insight, error) {
	if s.driver == nil {
		return nil, fmt.Errorf("neo4j driver is nil")
	}
	if len(articleIDs) == 0 {
		return map[string]Insight{}, nil
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (a:Article)
		WHERE a.id IN $ids
		OPTIONAL MATCH (a)-[:MENTIONS]->(t:Topic)
		OPTIONAL MATCH (t)<-[:MENTIONS]-(related:Article)
		WITH a,
		     collect(DISTINCT t.name) AS topicNames,
		     collect(DISTINCT related) AS relatedNodes
		RETURN a.id AS id,
		       [t IN topicNames WHERE t IS NOT NULL] AS topics,
		       [r IN relatedNodes WHERE r IS NOT NULL AND r.id <> a.id | {id: r.id, title: r.title, source: r.source}] AS related
	`, map[string]any{"ids": articleIDs})
	if err != nil {
		return nil, fmt.Errorf("run neo4j insights query: %w", err)
	}

	insights := make(map[string]Insight, len(articleIDs))
	for result.Next(ctx) {
		record := result.Record()
		idVal, _ := record.Get("id")
		topicsVal, _ := record.Get("topics")
		relatedVal, _ := record.Get("related")

		id, ok := idVal.(string)
		if !ok {
			continue
		}

		insights[id] = Insight{
			Topics:  convertStringSlice(topicsVal),
			Related: convertRelated(relatedVal),
		}
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("neo4j insights result error: %w", err)
	}

	return insights, nil
}

func convertStringSlice(value any) []string {
	raw, ok := value.([]any)
	if !ok {
		if v, ok := value.([]string); ok {
			return v
		}
		return nil
	}

	result := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && s != "" {
			result = append(result, s)
		}
	}
	return result
}

func convertRelated(value any) []RelatedArticle {
	raw, ok := value.([]any)
	if !ok {
		return nil
	}

	related := make([]RelatedArticle, 0, len(raw))
	for _, item := range raw {
		data, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, _ := data["id"].(string)
		title, _ := data["title"].(string)
		source, _ := data["source"].(string)
		if id == "" {
			continue
		}
		related = append(related, RelatedArticle{ID: id, Title: title, Source: source})
	}
	return related
}
