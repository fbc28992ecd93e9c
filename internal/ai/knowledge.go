package ai

import "context"

// Retriever fetches knowledge-base context relevant to a customer question,
// for grounding quote and financing replies.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (string, error)
}

// StaticKnowledge is a Retriever backed by the built-in financing notes.
// It stands in when no external knowledge base is configured.
type StaticKnowledge struct{}

// Retrieve returns the static financing context regardless of query.
func (StaticKnowledge) Retrieve(ctx context.Context, query string) (string, error) {
	return FinancingKnowledge, nil
}

// FinancingKnowledge is the static financing context appended to prompts
// that answer price or quote questions. It keeps the model grounded when
// no live pricing service is available.
const FinancingKnowledge = `Planes de financiamiento SICREA:
- Plan Si Facil: aprobacion sin buro de credito, enganches desde $15,000 y mensualidades fijas.
- Plan Cronos: estrena en plazos definidos con mensualidades mas bajas que un credito tradicional.
- Todos los planes aplican para autos nuevos de la marca y se pueden combinar con el enganche disponible del cliente.
- Para montos exactos siempre ofrecer una cotizacion formal con un asesor.`
