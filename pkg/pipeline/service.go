package pipeline

import (
	"context"

	"github.com/shouni/go-comic-kit/pkg/domain"
)

// Service はオーケストレーターが利用する生成モデルの操作です。
// 各メソッドは1往復の呼び出しだけを行い、再試行はしません。
type Service interface {
	AnalyzeImage(ctx context.Context, img domain.Image) (*domain.CharacterProfile, error)
	GenerateCastConcepts(ctx context.Context, profile *domain.CharacterProfile) ([]domain.CharacterConcept, error)
	DevelopBlueprint(ctx context.Context, concepts []domain.CharacterConcept) (*domain.StoryDevelopmentPackage, error)
	GenerateScript(ctx context.Context, blueprint *domain.StoryDevelopmentPackage, castDescription string) (*domain.StoryOutline, error)
	// PolishDialogue は失敗しても入力のパネルをそのまま返します。
	PolishDialogue(ctx context.Context, panel domain.Panel, blueprint *domain.StoryDevelopmentPackage) domain.Panel
	Narrate(ctx context.Context, outline *domain.StoryOutline) (string, error)
	GenerateImage(ctx context.Context, req domain.ImageRequest) (domain.Image, error)
	VerifyConsistency(ctx context.Context, img domain.Image, character domain.GeneratedCharacter) (domain.Verification, error)
}
