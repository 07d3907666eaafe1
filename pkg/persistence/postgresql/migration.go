package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE graph_routes (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				model_id VARCHAR(255) NOT NULL DEFAULT '',
				initiator VARCHAR(255) NOT NULL DEFAULT '',
				parent_route_id VARCHAR(255),
				parent_node_id VARCHAR(255),
				variables JSONB,
				state VARCHAR(50) NOT NULL CHECK (state IN ('ready', 'running', 'done', 'canceled')),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE,
				ended_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_graph_routes_state ON graph_routes(state);
			CREATE INDEX idx_graph_routes_parent ON graph_routes(parent_route_id, parent_node_id);
			CREATE INDEX idx_graph_routes_created_at ON graph_routes(created_at);

			-- One row per node, the whole node document lives in data
			CREATE TABLE graph_nodes (
				route_id VARCHAR(255) NOT NULL REFERENCES graph_routes(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				position INT NOT NULL,
				state VARCHAR(50) NOT NULL,
				data JSONB NOT NULL,
				PRIMARY KEY (route_id, id)
			);

			CREATE INDEX idx_graph_nodes_state ON graph_nodes(state);
		`,
		2: `
			CREATE TABLE route_tasks (
				id VARCHAR(255) PRIMARY KEY,
				route_id VARCHAR(255) NOT NULL,
				node_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL DEFAULT '',
				assignees JSONB NOT NULL DEFAULT '[]',
				due_date TIMESTAMP WITH TIME ZONE,
				permission VARCHAR(255) NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL CHECK (status IN ('open', 'ended', 'canceled')),
				actor VARCHAR(255) NOT NULL DEFAULT '',
				action VARCHAR(255) NOT NULL DEFAULT '',
				comment TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				ended_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_route_tasks_route_id ON route_tasks(route_id);
			CREATE INDEX idx_route_tasks_status ON route_tasks(status);
			CREATE INDEX idx_route_tasks_assignees ON route_tasks USING GIN (assignees);
		`,
	}
}
