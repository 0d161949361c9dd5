package registry

import (
	"context"
	"fmt"
	"net/url"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	POSTAnonymous(path string, body any) error
	GET(path string) error
	Status() int
	GetResponseField(field string) (any, error)
	Principal() string
}

// RegisterSteps registers registry step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &registrySteps{tc: tc}

	ctx.Step(`^I claim "([^"]*)"$`, steps.claim)
	ctx.Step(`^I claim "([^"]*)" without authentication$`, steps.claimAnonymously)
	ctx.Step(`^I claim "([^"]*)" by identifier$`, steps.claimByIdentifier)
	ctx.Step(`^I renounce "([^"]*)"$`, steps.renounce)
	ctx.Step(`^I transfer "([^"]*)" to "([^"]*)"$`, steps.transfer)

	ctx.Step(`^the owner of "([^"]*)" should be "([^"]*)"$`, steps.ownerShouldBe)
	ctx.Step(`^"([^"]*)" should hold (\d+) entr(?:y|ies)$`, steps.balanceShouldBe)
}

type registrySteps struct {
	tc TestContext
}

func (s *registrySteps) claim(ctx context.Context, source string) error {
	return s.tc.POST("/claims", map[string]string{"uri": source})
}

func (s *registrySteps) claimAnonymously(ctx context.Context, source string) error {
	return s.tc.POSTAnonymous("/claims", map[string]string{"uri": source})
}

func (s *registrySteps) claimByIdentifier(ctx context.Context, source string) error {
	tokenID, err := s.resolve(source)
	if err != nil {
		return err
	}
	return s.tc.POST("/tokens/"+tokenID+"/claim", nil)
}

func (s *registrySteps) renounce(ctx context.Context, source string) error {
	tokenID, err := s.resolve(source)
	if err != nil {
		return err
	}
	return s.tc.POST("/tokens/"+tokenID+"/renounce", nil)
}

func (s *registrySteps) transfer(ctx context.Context, source, to string) error {
	tokenID, err := s.resolve(source)
	if err != nil {
		return err
	}
	return s.tc.POST("/tokens/"+tokenID+"/transfer", map[string]string{"to": to})
}

func (s *registrySteps) ownerShouldBe(ctx context.Context, source, owner string) error {
	tokenID, err := s.resolve(source)
	if err != nil {
		return err
	}
	if err := s.tc.GET("/tokens/" + tokenID); err != nil {
		return err
	}
	got, err := s.tc.GetResponseField("owner")
	if err != nil {
		return err
	}
	if got != owner {
		return fmt.Errorf("expected %q to be owned by %q, got %v", source, owner, got)
	}
	return nil
}

func (s *registrySteps) balanceShouldBe(ctx context.Context, principal string, count int) error {
	if err := s.tc.GET("/owners/" + url.PathEscape(principal) + "/balance"); err != nil {
		return err
	}
	got, err := s.tc.GetResponseField("balance")
	if err != nil {
		return err
	}
	if n, ok := got.(float64); !ok || int(n) != count {
		return fmt.Errorf("expected %s to hold %d, got %v", principal, count, got)
	}
	return nil
}

// resolve maps a source string to its decimal identifier without touching
// the last-response state callers assert on.
func (s *registrySteps) resolve(source string) (string, error) {
	if err := s.tc.GET("/resolve/" + url.PathEscape(source)); err != nil {
		return "", err
	}
	tokenID, err := s.tc.GetResponseField("token_id")
	if err != nil {
		return "", err
	}
	id, ok := tokenID.(string)
	if !ok {
		return "", fmt.Errorf("token_id is not a string: %v", tokenID)
	}
	return id, nil
}
